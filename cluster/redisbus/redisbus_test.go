package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	db := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payloads, err := bus.Subscribe(ctx, "events")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bus.Publish(ctx, "events", []byte("hello")) == nil
	}, time.Second, 10*time.Millisecond)

	select {
	case p := <-payloads:
		require.Equal(t, "hello", string(p))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestBusSubscribeClosesOnContextCancel(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	payloads, err := bus.Subscribe(ctx, "events")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-payloads:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
