// Package systopic implements SysTopicIndex: a local-only map of $SYS
// subscriptions, isolated from the ephemeral and persistent indices and
// never persisted or gossiped across the cluster.
package systopic

import (
	"sync"

	"github.com/nimbus-mqtt/subindex/record"
	"github.com/nimbus-mqtt/subindex/topics"
)

// Index holds SysTopicClients: filter -> subscription set.
type Index struct {
	mu      sync.RWMutex
	filters map[string]map[string]record.Subscription // filter -> clientId -> subscription
}

// New returns an empty system-topic index.
func New() *Index {
	return &Index{filters: make(map[string]map[string]record.Subscription)}
}

// Add registers r under its filter, replacing any existing record for
// the same (ClientID, Filter).
func (x *Index) Add(r record.Subscription) {
	x.mu.Lock()
	defer x.mu.Unlock()
	bucket, ok := x.filters[r.Filter]
	if !ok {
		bucket = make(map[string]record.Subscription)
		x.filters[r.Filter] = bucket
	}
	bucket[r.ClientID] = r
}

// Remove deletes clientId's subscription to filter, if any.
func (x *Index) Remove(clientID, filter string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if bucket, ok := x.filters[filter]; ok {
		delete(bucket, clientID)
	}
}

// ClearClient removes every system-topic subscription held by clientId.
func (x *Index) ClearClient(clientID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, bucket := range x.filters {
		delete(bucket, clientID)
	}
}

// MatchTopics returns every system-topic subscription whose filter
// matches topic. topic is expected (but not required) to itself be a
// $SYS topic — TopicMatcher refuses to cross the $SYS boundary either
// way.
func (x *Index) MatchTopics(topic string) []record.Subscription {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []record.Subscription
	for filter, bucket := range x.filters {
		if !topics.Match(topic, filter) {
			continue
		}
		for _, r := range bucket {
			out = append(out, r)
		}
	}
	return out
}
