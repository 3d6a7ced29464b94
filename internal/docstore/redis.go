package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// maxTxAttempts bounds the optimistic WATCH/MULTI loop of a single write.
const maxTxAttempts = 16

var ErrConflict = errors.New("document changed concurrently")

// Redis keeps every document (two-segment path, e.g. rooms/101) as one JSON string key,
// indexes the members of a collection in a Redis set and announces writes on Pub/Sub.
type Redis struct {
	logger *slog.Logger
	client *redis.Client
	prefix string
}

func NewRedis(logger *slog.Logger, client *redis.Client, prefix string) *Redis {
	return &Redis{
		logger: logger.With("component", "docstore.redis"),
		client: client,
		prefix: prefix,
	}
}

type docRef struct {
	collection string
	id         string
}

func (that *Redis) docKey(ref docRef) string {
	return that.prefix + ref.collection + "/" + ref.id
}

func (that *Redis) indexKey(collection string) string {
	return that.prefix + collection
}

func (that *Redis) docChannel(ref docRef) string {
	return that.prefix + "changes:" + ref.collection + "/" + ref.id
}

func (that *Redis) collectionChannel(collection string) string {
	return that.prefix + "changes:" + collection
}

func (that *Redis) Get(ctx context.Context, path string) (Snapshot, error) {
	segments := Split(path)

	switch len(segments) {
	case 0:
		return Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	case 1:
		value, err := that.readCollection(ctx, segments[0])
		if err != nil {
			return Snapshot{}, err
		}

		return Snapshot{Path: Join(path), Value: value}, nil
	default:
		doc, err := that.readDoc(ctx, that.client, docRef{collection: segments[0], id: segments[1]})
		if err != nil {
			return Snapshot{}, err
		}

		return Snapshot{Path: Join(path), Value: lookup(doc, segments[2:])}, nil
	}
}

func (that *Redis) Set(ctx context.Context, path string, value any) error {
	segments := Split(path)
	if len(segments) == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	normalized, err := normalize(value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}

	if len(segments) == 1 {
		return that.replaceCollection(ctx, segments[0], normalized)
	}

	return that.write(ctx, []change{{segments: segments, value: normalized}})
}

func (that *Redis) Update(ctx context.Context, path string, fields map[string]any) error {
	changes, err := expand(Split(path), fields)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}

	for _, c := range changes {
		if len(c.segments) < 2 {
			return fmt.Errorf("%w: cannot merge into a collection root", ErrInvalidPath)
		}
	}

	return that.write(ctx, changes)
}

func (that *Redis) Remove(ctx context.Context, path string) error {
	return that.Set(ctx, path, nil)
}

func (that *Redis) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error) {
	segments := Split(path)

	var channel string
	switch len(segments) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	case 1:
		channel = that.collectionChannel(segments[0])
	default:
		channel = that.docChannel(docRef{collection: segments[0], id: segments[1]})
	}

	pubsub := that.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := newSubscription(Join(path), fn)
	go sub.run()

	go func() {
		defer func() {
			if err := pubsub.Close(); err != nil {
				that.logger.Warn("failed to close pubsub", "channel", channel, "error", err)
			}
		}()

		that.refresh(ctx, sub)

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.stop()
				return
			case <-sub.done:
				return
			case _, ok := <-messages:
				if !ok {
					sub.stop()
					return
				}

				that.refresh(ctx, sub)
			}
		}
	}()

	return sub.stop, nil
}

// refresh re-reads the subscribed path, the notification itself carries no payload.
func (that *Redis) refresh(ctx context.Context, sub *subscription) {
	snapshot, err := that.Get(ctx, sub.path)
	if err != nil {
		if ctx.Err() == nil {
			that.logger.Warn("failed to read subscribed path", "path", sub.path, "error", err)
		}
		return
	}

	sub.offer(snapshot)
}

// getter is satisfied by both the client and a watched transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (that *Redis) readDoc(ctx context.Context, cmd getter, ref docRef) (any, error) {
	raw, err := cmd.Get(ctx, that.docKey(ref)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", ref.collection, ref.id, err)
	}

	var doc any
	if err = json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s/%s: %w", ref.collection, ref.id, err)
	}

	return doc, nil
}

func (that *Redis) readCollection(ctx context.Context, collection string) (any, error) {
	ids, err := that.client.SMembers(ctx, that.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = that.docKey(docRef{collection: collection, id: id})
	}

	values, err := that.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}

	out := make(map[string]any, len(ids))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var doc any
		if err = json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document %s/%s: %w", collection, ids[i], err)
		}

		out[ids[i]] = doc
	}

	if len(out) == 0 {
		return nil, nil
	}

	return out, nil
}

// write applies changes to the affected documents in one optimistic transaction.
func (that *Redis) write(ctx context.Context, changes []change) error {
	var refs []docRef
	seen := make(map[docRef]bool)
	for _, c := range changes {
		ref := docRef{collection: c.segments[0], id: c.segments[1]}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = that.docKey(ref)
	}

	txf := func(tx *redis.Tx) error {
		docs := make(map[docRef]any, len(refs))
		for _, ref := range refs {
			doc, err := that.readDoc(ctx, tx, ref)
			if err != nil {
				return err
			}
			docs[ref] = doc
		}

		for _, c := range changes {
			ref := docRef{collection: c.segments[0], id: c.segments[1]}
			docs[ref] = put(docs[ref], c.segments[2:], clone(c.value))
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, ref := range refs {
				if err := that.stage(ctx, pipe, ref, docs[ref]); err != nil {
					return err
				}
			}

			return nil
		})

		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := that.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}

		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to write documents: %w", err)
		}
	}

	return ErrConflict
}

func (that *Redis) replaceCollection(ctx context.Context, collection string, value any) error {
	ids, err := that.client.SMembers(ctx, that.indexKey(collection)).Result()
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", collection, err)
	}

	docs := make(map[docRef]any)
	for _, id := range ids {
		docs[docRef{collection: collection, id: id}] = nil
	}

	if m, ok := value.(map[string]any); ok {
		for id, doc := range m {
			docs[docRef{collection: collection, id: id}] = doc
		}
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for ref, doc := range docs {
			if err := that.stage(ctx, pipe, ref, doc); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", collection, err)
	}

	return nil
}

// stage queues the write of one document, its index entry and the change notifications.
func (that *Redis) stage(ctx context.Context, pipe redis.Pipeliner, ref docRef, doc any) error {
	if doc == nil {
		pipe.Del(ctx, that.docKey(ref))
		pipe.SRem(ctx, that.indexKey(ref.collection), ref.id)
	} else {
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document %s/%s: %w", ref.collection, ref.id, err)
		}

		pipe.Set(ctx, that.docKey(ref), raw, 0)
		pipe.SAdd(ctx, that.indexKey(ref.collection), ref.id)
	}

	pipe.Publish(ctx, that.docChannel(ref), ref.id)
	pipe.Publish(ctx, that.collectionChannel(ref.collection), ref.id)

	return nil
}
