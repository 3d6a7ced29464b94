// Package suite starts a disposable Redis for tests that need the shared document store.
package suite

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
)

const (
	containerTTL = 120
	startTimeout = 2 * time.Minute

	redisImage = "redis"
	redisTag   = "7-alpine"
	redisPort  = "6379/tcp"

	keyPrefix = "test:"
)

// Suite carries a Redis client and a document store whose keys live under keyPrefix.
type Suite struct {
	*testing.T
	Logger *slog.Logger

	Storage *redis.Client
	Store   *docstore.Redis
}

// New starts a Redis container for t and removes it when t ends. Skipped with -short.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping docker backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := startRedis(ctx, t)

	return ctx, &Suite{
		T:       t,
		Logger:  logger,
		Storage: client,
		Store:   docstore.NewRedis(logger, client, keyPrefix),
	}
}

func startRedis(ctx context.Context, t *testing.T) *redis.Client {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err, "docker is not reachable")
	pool.MaxWait = startTimeout

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
	}, func(host *docker.HostConfig) {
		host.AutoRemove = true
		host.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "redis container did not start")

	t.Cleanup(func() {
		if purgeErr := pool.Purge(resource); purgeErr != nil {
			t.Logf("could not purge redis container: %v", purgeErr)
		}
	})

	// docker kills the container even if the cleanup above never runs
	_ = resource.Expire(containerTTL)

	client := redis.NewClient(&redis.Options{Addr: resource.GetHostPort(redisPort)})
	t.Cleanup(func() { _ = client.Close() })

	err = pool.Retry(func() error {
		return client.Ping(ctx).Err()
	})
	require.NoError(t, err, "redis is not answering")

	require.NoError(t, client.FlushDB(ctx).Err())

	return client
}
