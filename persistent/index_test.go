package persistent

import (
	"context"
	"testing"

	"github.com/nimbus-mqtt/subindex/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys() KeyScheme {
	return KeyScheme{
		TopicSetKey:        "topics",
		TopicPrefix:        "topic:",
		ClientTopicsPrefix: "client:",
	}
}

func TestPersistentAddThenMatch(t *testing.T) {
	ctx := context.Background()
	idx := New(NewMemStore(), nil, testKeys())

	require.NoError(t, idx.Add(ctx, record.Subscription{ClientID: "c1", Filter: "t", QoS: 1}))

	matches, err := idx.MatchTopics(ctx, "t")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, byte(1), matches[0].QoS)
}

func TestPersistentResubscribeReplacesQoS(t *testing.T) {
	ctx := context.Background()
	idx := New(NewMemStore(), nil, testKeys())

	require.NoError(t, idx.Add(ctx, record.Subscription{ClientID: "c1", Filter: "t", QoS: 0}))
	require.NoError(t, idx.Add(ctx, record.Subscription{ClientID: "c1", Filter: "t", QoS: 2}))

	matches, err := idx.MatchTopics(ctx, "t")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, byte(2), matches[0].QoS)
}

func TestPersistentClearClient(t *testing.T) {
	ctx := context.Background()
	idx := New(NewMemStore(), nil, testKeys())

	require.NoError(t, idx.Add(ctx, record.Subscription{ClientID: "c1", Filter: "t", QoS: 1}))

	cleared, err := idx.ClearClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, cleared)

	matches, err := idx.MatchTopics(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, matches)

	held, err := idx.store.SetMembers(ctx, idx.keys.clientTopicsKey("c1"))
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestPersistentWithInnerCache(t *testing.T) {
	ctx := context.Background()
	idx := New(NewMemStore(), NewMemCache(), testKeys())
	require.NoError(t, idx.WarmCache(ctx))

	require.NoError(t, idx.Add(ctx, record.Subscription{ClientID: "c1", Filter: "t", QoS: 1}))

	// Served from the cache, not the store.
	matches, err := idx.MatchTopics(ctx, "t")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ClientID)
}

func TestWarmCacheRebuildsFromStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	idx := New(store, nil, testKeys())
	require.NoError(t, idx.Add(ctx, record.Subscription{ClientID: "c1", Filter: "t", QoS: 1}))

	warm := New(store, NewMemCache(), testKeys())
	assert.False(t, warm.Warm())
	require.NoError(t, warm.WarmCache(ctx))
	assert.True(t, warm.Warm())

	matches, err := warm.MatchTopics(ctx, "t")
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestApplyDelTopicRemovesEverywhere(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	cache := NewMemCache()
	idx := New(store, cache, testKeys())

	require.NoError(t, idx.Add(ctx, record.Subscription{ClientID: "c1", Filter: "t", QoS: 1}))
	require.NoError(t, idx.ApplyDelTopic(ctx, "t"))

	members, err := store.SetMembers(ctx, "topics")
	require.NoError(t, err)
	assert.NotContains(t, members, "t")
	assert.Empty(t, cache.Topics())

	// TopicHash["t"] itself must be gone too, not just pruned from TopicSet
	// — otherwise a future re-subscribe to the same filter would resurrect
	// c1 as a phantom subscriber straight out of the remote store.
	entries, err := store.HashEntries(ctx, "topic:t")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplyDelTopicThenReuseHasNoPhantomSubscriber(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	idx := New(store, nil, testKeys())

	require.NoError(t, idx.Add(ctx, record.Subscription{ClientID: "stale", Filter: "t", QoS: 1}))
	require.NoError(t, idx.ApplyDelTopic(ctx, "t"))
	require.NoError(t, idx.Add(ctx, record.Subscription{ClientID: "fresh", Filter: "t", QoS: 0}))

	matches, err := idx.MatchTopics(ctx, "t")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "fresh", matches[0].ClientID)
}

func TestMirrorAddAndRemoveTouchOnlyCache(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	cache := NewMemCache()
	idx := New(store, cache, testKeys())

	require.NoError(t, idx.MirrorAdd(ctx, record.Subscription{ClientID: "c1", Filter: "t", QoS: 1}))

	// the cache sees it, but the store was never touched.
	assert.Equal(t, []string{"t"}, idx.CachedClientTopics("c1"))
	members, err := store.SetMembers(ctx, "topics")
	require.NoError(t, err)
	assert.Empty(t, members)

	idx.MirrorRemove("c1", []string{"t"})
	assert.Empty(t, idx.CachedClientTopics("c1"))
}

func TestMirrorOpsNoopWithoutCache(t *testing.T) {
	ctx := context.Background()
	idx := New(NewMemStore(), nil, testKeys())

	require.NoError(t, idx.MirrorAdd(ctx, record.Subscription{ClientID: "c1", Filter: "t"}))
	idx.MirrorRemove("c1", []string{"t"}) // must not panic with no cache configured
}

func TestCachedClientTopicsAuthoritativeOnlyWithCache(t *testing.T) {
	ctx := context.Background()
	idx := New(NewMemStore(), NewMemCache(), testKeys())
	require.NoError(t, idx.Add(ctx, record.Subscription{ClientID: "c1", Filter: "t", QoS: 1}))

	assert.Equal(t, []string{"t"}, idx.CachedClientTopics("c1"))

	noCache := New(NewMemStore(), nil, testKeys())
	assert.Nil(t, noCache.CachedClientTopics("c1"))
}
