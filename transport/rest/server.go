package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

const shutdownTimeout = 5 * time.Second

type roomReader interface {
	List(ctx context.Context) ([]*entity.Room, error)
	GetByID(ctx context.Context, id string) (*entity.Room, error)
}

type presenceReader interface {
	List(ctx context.Context) ([]*entity.Presence, error)
}

type Server struct {
	logger   *slog.Logger
	rooms    roomReader
	presence presenceReader
	wsPath   string
}

func New(logger *slog.Logger, rooms roomReader, presence presenceReader, wsPath string) *Server {
	return &Server{
		logger:   logger.With("component", "rest"),
		rooms:    rooms,
		presence: presence,
		wsPath:   wsPath,
	}
}

// Router builds the gin engine with every route registered.
func (that *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), that.requestLogger())

	router.GET("/ping", NewPingHandler().Ping)

	api := router.Group("/api")
	api.GET("/rooms", that.listRooms)
	api.GET("/rooms/:id", that.getRoom)
	api.GET("/online", that.listOnline)

	router.GET(gamePath, that.openGame)

	return router
}

// Start - starts HTTP server and shuts it down when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down http server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		that.logger.Debug("request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
