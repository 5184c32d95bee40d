package ephemeral

import (
	"sort"
	"testing"

	"github.com/nimbus-mqtt/subindex/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMatchRemove(t *testing.T) {
	idx := New()

	idx.Add(record.Subscription{ClientID: "c1", Filter: "a/+/c", QoS: 1, CleanSession: true})

	matches := idx.MatchTopics("a/b/c")
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ClientID)
	assert.Equal(t, byte(1), matches[0].QoS)

	assert.Empty(t, idx.MatchTopics("a/b"))

	idx.Remove("c1", []string{"a/+/c"})
	assert.Empty(t, idx.MatchTopics("a/b/c"))
}

func TestAddIsIdempotentAndUpdatesQoS(t *testing.T) {
	idx := New()
	idx.Add(record.Subscription{ClientID: "c1", Filter: "t", QoS: 0, CleanSession: true})
	idx.Add(record.Subscription{ClientID: "c1", Filter: "t", QoS: 2, CleanSession: true})

	matches := idx.MatchTopics("t")
	require.Len(t, matches, 1)
	assert.Equal(t, byte(2), matches[0].QoS)
}

func TestSubscribeThenUnsubscribeRestoresPriorState(t *testing.T) {
	idx := New()
	r := record.Subscription{ClientID: "c1", Filter: "t", QoS: 1, CleanSession: true}

	idx.Add(r)
	idx.Remove(r.ClientID, []string{r.Filter})

	assert.Empty(t, idx.MatchTopics("t"))
	assert.Empty(t, idx.ClientTopics("c1"))
}

func TestClearClient(t *testing.T) {
	idx := New()
	idx.Add(record.Subscription{ClientID: "c1", Filter: "a", CleanSession: true})
	idx.Add(record.Subscription{ClientID: "c1", Filter: "b", CleanSession: true})
	idx.Add(record.Subscription{ClientID: "c2", Filter: "a", CleanSession: true})

	cleared := idx.ClearClient("c1")
	sort.Strings(cleared)
	assert.Equal(t, []string{"a", "b"}, cleared)

	assert.Empty(t, idx.ClientTopics("c1"))
	// c2's subscription to "a" survives c1's clear.
	matches := idx.MatchTopics("a")
	require.Len(t, matches, 1)
	assert.Equal(t, "c2", matches[0].ClientID)
}

func TestTopicSubscribersAndRemoveTopic(t *testing.T) {
	idx := New()
	idx.Add(record.Subscription{ClientID: "c1", Filter: "a/b", QoS: 1, CleanSession: true})
	idx.Add(record.Subscription{ClientID: "c2", Filter: "a/b", QoS: 0, CleanSession: true})
	// a wildcard holder of a different filter must be untouched by RemoveTopic("a/b").
	idx.Add(record.Subscription{ClientID: "c2", Filter: "a/#", QoS: 0, CleanSession: true})

	subs := idx.TopicSubscribers("a/b")
	require.Len(t, subs, 2)

	ids := []string{subs[0].ClientID, subs[1].ClientID}
	sort.Strings(ids)
	assert.Equal(t, []string{"c1", "c2"}, ids)

	idx.RemoveTopic("a/b", ids)
	assert.Empty(t, idx.TopicSubscribers("a/b"))

	// c2's independent "a/#" subscription still matches "a/b" by wildcard;
	// RemoveTopic only drops the exact filter bucket, not other filters.
	matches := idx.MatchTopics("a/b")
	require.Len(t, matches, 1)
	assert.Equal(t, "a/#", matches[0].Filter)
	assert.Contains(t, idx.ClientTopics("c2"), "a/#")
}

func TestNoDuplicatesOnSameClientAndTopic(t *testing.T) {
	idx := New()
	idx.Add(record.Subscription{ClientID: "c1", Filter: "#", CleanSession: true})
	idx.Add(record.Subscription{ClientID: "c1", Filter: "a", CleanSession: true})

	matches := idx.MatchTopics("a")
	require.Len(t, matches, 2)

	seen := map[record.Key]bool{}
	for _, m := range matches {
		assert.False(t, seen[m.Key()], "duplicate subscription %+v", m)
		seen[m.Key()] = true
	}
}
