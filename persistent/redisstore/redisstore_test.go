package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := Open(context.Background(), &redis.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetAdd(ctx, "topics", "a/b"))
	require.NoError(t, s.SetAdd(ctx, "topics", "a/c"))

	members, err := s.SetMembers(ctx, "topics")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a/b", "a/c"}, members)

	require.NoError(t, s.SetRemove(ctx, "topics", "a/b"))
	members, err = s.SetMembers(ctx, "topics")
	require.NoError(t, err)
	require.Equal(t, []string{"a/c"}, members)

	require.NoError(t, s.SetDelete(ctx, "topics"))
	members, err = s.SetMembers(ctx, "topics")
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestHashRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.HashPut(ctx, "topic:t", "c1", "2"))
	entries, err := s.HashEntries(ctx, "topic:t")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"c1": "2"}, entries)

	require.NoError(t, s.HashRemove(ctx, "topic:t", "c1"))
	entries, err = s.HashEntries(ctx, "topic:t")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestHashDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.HashPut(ctx, "topic:t", "c1", "1"))
	require.NoError(t, s.HashPut(ctx, "topic:t", "c2", "2"))

	require.NoError(t, s.HashDelete(ctx, "topic:t"))
	entries, err := s.HashEntries(ctx, "topic:t")
	require.NoError(t, err)
	require.Empty(t, entries)
}
