package redisfeed_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"tictactoe-server/internal/feed/redisfeed"
	"tictactoe-server/internal/tictactoe"
)

func startRedis(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestFeed_PublishSubscribe(t *testing.T) {
	url := startRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, err := redisfeed.Open(ctx, url)
	require.NoError(t, err)
	defer f.Close()
	go f.Run(ctx)

	select {
	case <-f.Ready():
	case <-time.After(10 * time.Second):
		t.Fatal("subscription never confirmed")
	}

	var mu sync.Mutex
	var got []int64
	_, err = f.Subscribe(ctx, "s1", func(s tictactoe.Session) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s.Version)
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	waiting := tictactoe.NewSession("alice", now)
	waiting.ID = "s1"
	waiting.Version = 1
	other := waiting
	other.ID = "s2"

	require.NoError(t, f.Publish(ctx, other))
	require.NoError(t, f.Publish(ctx, waiting))
	active, err := tictactoe.Join(waiting, "bob", now)
	require.NoError(t, err)
	active.Version = 2
	require.NoError(t, f.Publish(ctx, active))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 10*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int64{1, 2}, got, "only s1, in publish order")
	mu.Unlock()
}

func TestOpen_MissingURL(t *testing.T) {
	_, err := redisfeed.Open(context.Background(), "")
	assert.Error(t, err)
}
