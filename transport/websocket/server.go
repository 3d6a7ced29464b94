package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"github.com/rocketscienceinc/connectfour-backend/internal/session"
)

const (
	shutdownTimeout = 5 * time.Second
	cleanupTimeout  = 5 * time.Second
)

type uLobby interface {
	RegisterPresence(ctx context.Context, sess *session.Session) error
	CreateRoom(ctx context.Context, sess *session.Session) (*entity.Room, error)
	JoinRoom(ctx context.Context, sess *session.Session, roomID string) (*entity.Room, error)
	ToggleReady(ctx context.Context, sess *session.Session, roomID string) error
	LeaveRoom(ctx context.Context, sess *session.Session, roomID string, force bool) error

	WatchRoom(ctx context.Context, sess *session.Session, roomID string, fn func(*entity.Room)) error
	WatchGameStart(ctx context.Context, sess *session.Session, roomID string, fn func(roomID, playerID string)) error
	WatchRooms(ctx context.Context, sess *session.Session, fn func([]*entity.Room)) error
	WatchOnline(ctx context.Context, sess *session.Session, fn func([]*entity.Presence)) error
}

type uMatch interface {
	Open(ctx context.Context, sess *session.Session, roomID, playerID string, fn func(*entity.Room)) error
	MakeMove(ctx context.Context, sess *session.Session, column int) (*entity.Room, error)
	Rematch(ctx context.Context, sess *session.Session) (*entity.Room, error)
	Leave(ctx context.Context, sess *session.Session) error
}

type handlerFunc func(ctx context.Context, c *client, req *Request) error

type Server struct {
	logger *slog.Logger
	store  docstore.Store
	uLobby uLobby
	uMatch uMatch

	upgrader websocket.Upgrader
	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, store docstore.Store, uLobby uLobby, uMatch uMatch) *Server {
	server := &Server{
		logger: logger.With("component", "websocket"),
		store:  store,
		uLobby: uLobby,
		uMatch: uMatch,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		handlers: make(map[string]handlerFunc),
	}

	server.handlers[actionLobbyEnter] = server.handleLobbyEnter
	server.handlers[actionRoomCreate] = server.handleRoomCreate
	server.handlers[actionRoomJoin] = server.handleRoomJoin
	server.handlers[actionRoomReady] = server.handleRoomReady
	server.handlers[actionRoomLeave] = server.handleRoomLeave
	server.handlers[actionGameOpen] = server.handleGameOpen
	server.handlers[actionGameMove] = server.handleGameMove
	server.handlers[actionGameRematch] = server.handleGameRematch
	server.handlers[actionGameLeave] = server.handleGameLeave

	return server
}

// Handler serves the socket endpoint. Connections end when ctx is done.
func (that *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConnection(ctx, w, r)
	})

	return mux
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down websocket server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) serveConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveConnection")

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	defer conn.Close()

	sess := session.New(docstore.NewConn(that.store))
	c := newClient(conn, sess)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer that.closeSession(c)

	log = log.With("session", sess.PlayerID())
	log.Info("WebSocket connection established")

	go that.keepAlive(connCtx, c)

	if err = that.handleMessages(connCtx, c); err != nil {
		log.Info("WebSocket connection closed", "reason", err)
	}
}

// handleMessages - processes messages from the client until the connection drops.
func (that *Server) handleMessages(ctx context.Context, c *client) error {
	log := that.logger.With("method", "handleMessages", "session", c.sess.PlayerID())

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				log.Warn("failed to unmarshal message", "error", err)
				continue
			}

			return err
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			that.sendError(c, message.Action, ErrUnknownAction)
			continue
		}

		var req Request
		if len(message.Payload) > 0 {
			if err := json.Unmarshal(message.Payload, &req); err != nil {
				log.Warn("failed to unmarshal payload", "action", message.Action, "error", err)
				that.sendError(c, message.Action, ErrBadPayload)
				continue
			}
		}

		if err := handler(ctx, c, &req); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
			that.sendError(c, message.Action, err)
		}
	}
}

// keepAlive pings the client and closes the connection once ctx is done, which ends the read loop.
func (that *Server) keepAlive(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// closeSession leaves the game or lobby room the client still holds and runs the disconnect hooks.
func (that *Server) closeSession(c *client) {
	log := that.logger.With("method", "closeSession", "session", c.sess.PlayerID())

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if roomID, _ := c.sess.Match(); roomID != "" {
		if err := that.uMatch.Leave(ctx, c.sess); err != nil {
			log.Error("failed to leave game on disconnect", "room", roomID, "error", err)
		}
	}

	if roomID := c.sess.RoomID(); roomID != "" {
		if err := that.uLobby.LeaveRoom(ctx, c.sess, roomID, false); err != nil {
			log.Error("failed to leave room on disconnect", "room", roomID, "error", err)
		}
	}

	if err := c.sess.Close(ctx); err != nil {
		log.Error("failed to close session", "error", err)
	}
}
