package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/connectfour-backend/internal/config"
	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
	"github.com/rocketscienceinc/connectfour-backend/internal/notifier"
	"github.com/rocketscienceinc/connectfour-backend/internal/repository"
	"github.com/rocketscienceinc/connectfour-backend/internal/repository/storage"
	"github.com/rocketscienceinc/connectfour-backend/internal/usecase"
	"github.com/rocketscienceinc/connectfour-backend/transport/rest"
	"github.com/rocketscienceinc/connectfour-backend/transport/websocket"
)

const wsPath = "/ws"

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	store, closeStore, err := openStore(ctx, logger, conf)
	if err != nil {
		return err
	}
	defer closeStore()

	roomRepo := repository.NewRoomRepository(store)
	presenceRepo := repository.NewPresenceRepository(store)

	lobbyUseCase := usecase.NewLobby(logger, roomRepo, presenceRepo, conf.Game)
	matchUseCase := usecase.NewMatch(logger, roomRepo)

	if conf.NATS.URL != "" {
		nc, natsErr := notifier.Connect(conf.NATS.URL)
		if natsErr != nil {
			return natsErr
		}

		defer func() {
			if drainErr := nc.Drain(); drainErr != nil {
				log.Error("could not drain nats connection", "error", drainErr)
			}
		}()

		relay := notifier.New(logger, roomRepo, nc, conf.NATS.Subject)
		go func() {
			if relayErr := relay.Run(ctx); relayErr != nil {
				log.Error("room event relay stopped", "error", relayErr)
			}
		}()
	}

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		restServer := rest.New(logger, roomRepo, presenceRepo, wsPath)
		if httpErr := restServer.Start(ctx, conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, store, lobbyUseCase, matchUseCase)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// openStore picks the shared document store from config. The returned func releases it.
func openStore(ctx context.Context, logger *slog.Logger, conf *config.Config) (docstore.Store, func(), error) {
	log := logger.With("component", "app")

	switch conf.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store, state is lost on restart")
		return docstore.NewMemory(), func() {}, nil
	case config.StoreRedis:
		redisStorage, err := storage.NewRedisStorage(ctx, logger, conf.Redis.GetRedisAddr(), conf.Redis.KeyPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		closeStore := func() {
			if err := redisStorage.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}

		return redisStorage.Store, closeStore, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStore, conf.Store)
	}
}
