package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

type roomWatcher interface {
	WatchAll(ctx context.Context, fn func([]*entity.Room)) (docstore.Unsubscribe, error)
}

type deletedEvent struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// Notifier relays every room change to NATS on <subject>.<room id>.
type Notifier struct {
	logger  *slog.Logger
	rooms   roomWatcher
	pub     publisher
	subject string

	last map[string][]byte
}

func New(logger *slog.Logger, rooms roomWatcher, pub publisher, subject string) *Notifier {
	return &Notifier{
		logger:  logger.With("component", "notifier"),
		rooms:   rooms,
		pub:     pub,
		subject: subject,
		last:    make(map[string][]byte),
	}
}

// Connect dials NATS and keeps reconnecting in the background.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("connectfour-backend"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return nc, nil
}

// Run publishes room changes until ctx is done.
func (that *Notifier) Run(ctx context.Context) error {
	unsubscribe, err := that.rooms.WatchAll(ctx, that.relay)
	if err != nil {
		return fmt.Errorf("failed to watch rooms: %w", err)
	}
	defer unsubscribe()

	that.logger.Info("relaying room events", "subject", that.subject)

	<-ctx.Done()

	return nil
}

// relay runs on the subscription goroutine only, so last needs no lock.
func (that *Notifier) relay(rooms []*entity.Room) {
	seen := make(map[string]struct{}, len(rooms))

	for _, room := range rooms {
		seen[room.ID] = struct{}{}

		data, err := json.Marshal(room)
		if err != nil {
			that.logger.Error("failed to marshal room", "room", room.ID, "error", err)
			continue
		}

		if bytes.Equal(that.last[room.ID], data) {
			continue
		}

		that.last[room.ID] = data
		that.publish(room.ID, data)
	}

	for id := range that.last {
		if _, ok := seen[id]; ok {
			continue
		}

		delete(that.last, id)

		data, err := json.Marshal(deletedEvent{ID: id, Deleted: true})
		if err != nil {
			that.logger.Error("failed to marshal deletion", "room", id, "error", err)
			continue
		}

		that.publish(id, data)
	}
}

func (that *Notifier) publish(roomID string, data []byte) {
	subject := that.subject + "." + roomID

	if err := that.pub.Publish(subject, data); err != nil {
		that.logger.Error("failed to publish room event", "subject", subject, "error", err)
		return
	}

	that.logger.Debug("room event published", "subject", subject)
}
