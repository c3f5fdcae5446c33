// Package testutils holds Redis helpers shared by sink tests
package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// TestRedisDB keeps tests away from data in the default database
const TestRedisDB = 15

// NewRedisMock returns a mocked client whose expectations are checked when
// the test ends
func NewRedisMock(t *testing.T) (*redis.Client, redismock.ClientMock) {
	t.Helper()

	client, mock := redismock.NewClientMock()
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = client.Close()
	})
	return client, mock
}

// ConnectRedis connects to the Redis at url, switches to TestRedisDB and
// flushes it. The test is skipped when Redis cannot be reached.
func ConnectRedis(t *testing.T, url string) redis.UniversalClient {
	t.Helper()

	opts, err := redis.ParseURL(url)
	require.NoError(t, err, "invalid redis url %s", url)
	opts.DB = TestRedisDB

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err(), "Failed to flush test Redis database")

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}
