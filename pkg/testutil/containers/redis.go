//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"civicdesk/internal/platform/config"
	platformredis "civicdesk/internal/platform/redis"
)

// RedisContainer is a disposable Redis dialled through the server's own
// constructor so pool settings match production.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	c, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis")
	rc := &RedisContainer{Container: c}

	rc.URL, err = c.ConnectionString(ctx)
	if err == nil {
		var client *platformredis.Client
		client, err = platformredis.New(ctx, config.RedisConfig{URL: rc.URL})
		if err == nil {
			rc.Client = client.Client
		}
	}
	if err != nil {
		_ = c.Terminate(ctx)
		require.NoError(t, err, "connect to redis")
	}
	return rc
}

// FlushAll clears every key between suites sharing the container.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
