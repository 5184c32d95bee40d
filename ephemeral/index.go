// Package ephemeral implements the in-memory subscription index for
// clean-session clients: topic->clients, client->topics and the set of
// subscribed topics, all concurrency-safe and local-only. There is no
// failure mode here — every operation is infallible local map work.
package ephemeral

import (
	"sync"

	"github.com/nimbus-mqtt/subindex/record"
	"github.com/nimbus-mqtt/subindex/topics"
)

// topicBucket holds every ephemeral subscriber of one topic filter,
// guarded by its own mutex so that lookups against one topic are never
// serialised behind mutations of another — the per-key striping the
// concurrency model requires instead of one coarse index-wide lock.
type topicBucket struct {
	mu      sync.RWMutex
	clients map[string]record.Subscription // clientId -> subscription
}

// clientBucket holds every topic filter one client is subscribed to.
type clientBucket struct {
	mu     sync.RWMutex
	topics map[string]struct{}
}

// Index is the EphemeralIndex described in the spec: EphemeralTopics is
// represented implicitly as the key set of topics, EphemeralTopicClients
// as topics, and EphemeralClientTopics as clients.
type Index struct {
	topics  sync.Map // topic filter -> *topicBucket
	clients sync.Map // clientId -> *clientBucket
}

// New returns an empty ephemeral index.
func New() *Index {
	return &Index{}
}

// Add registers r, replacing any existing record for the same
// (ClientID, Filter) — idempotent and QoS-updating by construction, per
// the record equality rule. Invariants E1 and E2 hold immediately after
// this call returns.
func (x *Index) Add(r record.Subscription) {
	tb := x.topicBucketFor(r.Filter)
	tb.mu.Lock()
	tb.clients[r.ClientID] = r
	tb.mu.Unlock()

	cb := x.clientBucketFor(r.ClientID)
	cb.mu.Lock()
	cb.topics[r.Filter] = struct{}{}
	cb.mu.Unlock()
}

// Remove deletes any subscription clientId holds on each of topics. It
// does not prune a topic bucket left with zero clients from the topic
// set — matchers tolerate empty buckets, and pruning is optional per the
// spec, so this implementation leaves buckets in place for reuse rather
// than paying repeated allocation cost on churny topics.
func (x *Index) Remove(clientID string, topicFilters []string) {
	for _, t := range topicFilters {
		if v, ok := x.topics.Load(t); ok {
			tb := v.(*topicBucket)
			tb.mu.Lock()
			delete(tb.clients, clientID)
			tb.mu.Unlock()
		}
	}

	if v, ok := x.clients.Load(clientID); ok {
		cb := v.(*clientBucket)
		cb.mu.Lock()
		for _, t := range topicFilters {
			delete(cb.topics, t)
		}
		cb.mu.Unlock()
	}
}

// ClearClient atomically takes the full set of topics clientId is
// subscribed to, removes all of them, and returns the topics that were
// cleared.
func (x *Index) ClearClient(clientID string) []string {
	v, ok := x.clients.Load(clientID)
	if !ok {
		return nil
	}
	cb := v.(*clientBucket)

	cb.mu.Lock()
	cleared := make([]string, 0, len(cb.topics))
	for t := range cb.topics {
		cleared = append(cleared, t)
	}
	cb.mu.Unlock()

	x.Remove(clientID, cleared)
	return cleared
}

// MatchTopics returns every subscription whose filter matches the
// concrete topic. The result observes a consistent snapshot of each
// topic bucket individually, but buckets are read independently of one
// another — a subscription visible via one bucket may lag in another by
// a few instructions, which lookup callers are expected to tolerate.
func (x *Index) MatchTopics(topic string) []record.Subscription {
	var out []record.Subscription
	x.topics.Range(func(key, value any) bool {
		filter := key.(string)
		if !topics.Match(topic, filter) {
			return true
		}
		tb := value.(*topicBucket)
		tb.mu.RLock()
		for _, r := range tb.clients {
			out = append(out, r)
		}
		tb.mu.RUnlock()
		return true
	})
	return out
}

// TopicSubscribers returns every subscription recorded against the
// exact topic filter (no wildcard matching) — the lookup a DEL_TOPIC
// event needs to find who currently holds a filter before dropping it.
func (x *Index) TopicSubscribers(filter string) []record.Subscription {
	v, ok := x.topics.Load(filter)
	if !ok {
		return nil
	}
	tb := v.(*topicBucket)
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	out := make([]record.Subscription, 0, len(tb.clients))
	for _, r := range tb.clients {
		out = append(out, r)
	}
	return out
}

// RemoveTopic drops filter's topic bucket entirely and, for each client
// named in clientIDs, removes filter from that client's topic set. It is
// the local-index side of an inbound DEL_TOPIC event.
func (x *Index) RemoveTopic(filter string, clientIDs []string) {
	x.topics.Delete(filter)
	for _, clientID := range clientIDs {
		if v, ok := x.clients.Load(clientID); ok {
			cb := v.(*clientBucket)
			cb.mu.Lock()
			delete(cb.topics, filter)
			cb.mu.Unlock()
		}
	}
}

// ClientTopics returns the current set of topic filters with at least one
// ephemeral subscriber recorded against this client. It is used by
// tests and by SubscriptionService.Stats(); it is not on the spec's
// critical path.
func (x *Index) ClientTopics(clientID string) []string {
	v, ok := x.clients.Load(clientID)
	if !ok {
		return nil
	}
	cb := v.(*clientBucket)
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	out := make([]string, 0, len(cb.topics))
	for t := range cb.topics {
		out = append(out, t)
	}
	return out
}

func (x *Index) topicBucketFor(filter string) *topicBucket {
	if v, ok := x.topics.Load(filter); ok {
		return v.(*topicBucket)
	}
	tb := &topicBucket{clients: make(map[string]record.Subscription)}
	actual, _ := x.topics.LoadOrStore(filter, tb)
	return actual.(*topicBucket)
}

func (x *Index) clientBucketFor(clientID string) *clientBucket {
	if v, ok := x.clients.Load(clientID); ok {
		return v.(*clientBucket)
	}
	cb := &clientBucket{topics: make(map[string]struct{})}
	actual, _ := x.clients.LoadOrStore(clientID, cb)
	return actual.(*clientBucket)
}
