package persistent

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/jinzhu/copier"

	"github.com/nimbus-mqtt/subindex/record"
	"github.com/nimbus-mqtt/subindex/topics"
)

// KeyScheme names the remote-store keys this index reads and writes, all
// of which are configuration inputs per the spec's external interfaces.
type KeyScheme struct {
	TopicSetKey         string // the global TopicSet key
	TopicPrefix         string // per-topic TopicHash key = TopicPrefix + topic
	ClientTopicsPrefix  string // per-client ClientTopicSet key = ClientTopicsPrefix + clientId
}

func (k KeyScheme) topicHashKey(topic string) string    { return k.TopicPrefix + topic }
func (k KeyScheme) clientTopicsKey(client string) string { return k.ClientTopicsPrefix + client }

// Index is the PersistentIndex described in the spec: it bridges
// durable-session subscriptions to Store and, when cache is non-nil,
// keeps it as a coherent local mirror.
type Index struct {
	store  Store
	cache  Cache // nil when the inner cache is disabled
	keys   KeyScheme
	warmMu sync.Mutex
	warm   bool
}

// New returns a PersistentIndex over store, using keys to name the
// remote collections. cache may be nil to disable the inner cache.
func New(store Store, cache Cache, keys KeyScheme) *Index {
	return &Index{store: store, cache: cache, keys: keys}
}

// CacheEnabled reports whether an inner cache is configured.
func (x *Index) CacheEnabled() bool { return x.cache != nil }

// Add performs the three-way remote write for a persistent subscribe:
// TopicHash[topic][clientId] = qos, TopicSet += topic,
// ClientTopicSet[clientId] += topic. All three are dispatched
// concurrently; Add waits for all of them and fails the whole operation
// if any sub-operation failed, tagging which ones did. A retry is always
// safe since every sub-operation is idempotent.
//
// On success, if the inner cache is enabled, the local mirror is updated
// before Add returns — ahead of any cluster broadcast — so that the next
// local lookup on this node does not pay the gossip round trip.
func (x *Index) Add(ctx context.Context, r record.Subscription) error {
	ops := map[string]func() error{
		"TopicHash.put": func() error {
			return x.store.HashPut(ctx, x.keys.topicHashKey(r.Filter), r.ClientID, strconv.Itoa(int(r.QoS)))
		},
		"TopicSet.add": func() error {
			return x.store.SetAdd(ctx, x.keys.TopicSetKey, r.Filter)
		},
		"ClientTopicSet.add": func() error {
			return x.store.SetAdd(ctx, x.keys.clientTopicsKey(r.ClientID), r.Filter)
		},
	}

	if failed, err := runConcurrently(ops); err != nil {
		return &storeOpError{op: "persistent add", failed: failed, err: err}
	}

	if x.cache != nil {
		x.cache.PutTopic(r.Filter)
		x.cache.PutClient(r.Filter, r.ClientID, r.QoS)
	}
	return nil
}

// Remove clears clientId's subscription to each of topicFilters:
// removing clientId from each TopicHash[t], then removing topicFilters
// from ClientTopicSet[clientId]. It intentionally never prunes an
// emptied TopicHash[t] or TopicSet entry — that is DEL_TOPIC's job.
func (x *Index) Remove(ctx context.Context, clientID string, topicFilters []string) error {
	if len(topicFilters) == 0 {
		return nil
	}

	ops := make(map[string]func() error, len(topicFilters)+1)
	for _, t := range topicFilters {
		t := t
		ops["TopicHash.remove:"+t] = func() error {
			return x.store.HashRemove(ctx, x.keys.topicHashKey(t), clientID)
		}
	}
	ops["ClientTopicSet.remove"] = func() error {
		var lastErr error
		for _, t := range topicFilters {
			if err := x.store.SetRemove(ctx, x.keys.clientTopicsKey(clientID), t); err != nil {
				lastErr = err
			}
		}
		return lastErr
	}

	if failed, err := runConcurrently(ops); err != nil {
		return &storeOpError{op: "persistent remove", failed: failed, err: err}
	}

	if x.cache != nil {
		for _, t := range topicFilters {
			x.cache.RemoveClient(t, clientID)
		}
	}
	return nil
}

// ClearClient reads ClientTopicSet[clientId], deletes it, then removes
// clientId from each of those topics.
func (x *Index) ClearClient(ctx context.Context, clientID string) ([]string, error) {
	key := x.keys.clientTopicsKey(clientID)
	topicsHeld, err := x.store.SetMembers(ctx, key)
	if err != nil {
		return nil, &storeOpError{op: "persistent clearClient: read", err: err}
	}

	if err := x.store.SetDelete(ctx, key); err != nil {
		return nil, &storeOpError{op: "persistent clearClient: delete", err: err}
	}

	if err := x.Remove(ctx, clientID, topicsHeld); err != nil {
		return nil, err
	}
	return topicsHeld, nil
}

// MatchTopics returns every persistent subscription matching topic. When
// the inner cache is enabled and warm, the lookup is served entirely
// from the cache; otherwise it enumerates TopicSet from the store,
// filters with TopicMatcher, and fetches each surviving TopicHash to
// materialize records.
func (x *Index) MatchTopics(ctx context.Context, topic string) ([]record.Subscription, error) {
	if x.cache != nil && x.Warm() {
		return x.matchFromCache(topic), nil
	}
	return x.matchFromStore(ctx, topic)
}

func (x *Index) matchFromCache(topic string) []record.Subscription {
	var out []record.Subscription
	for _, filter := range x.cache.Topics() {
		if !topics.Match(topic, filter) {
			continue
		}
		for clientID, qos := range x.cache.ClientsOf(filter) {
			out = append(out, cloneSubscription(record.Subscription{
				ClientID: clientID, Filter: filter, QoS: qos,
			}))
		}
	}
	return out
}

func (x *Index) matchFromStore(ctx context.Context, topic string) ([]record.Subscription, error) {
	allTopics, err := x.store.SetMembers(ctx, x.keys.TopicSetKey)
	if err != nil {
		return nil, &storeOpError{op: "persistent match: TopicSet", err: err}
	}

	var out []record.Subscription
	for _, filter := range allTopics {
		if !topics.Match(topic, filter) {
			continue
		}
		entries, err := x.store.HashEntries(ctx, x.keys.topicHashKey(filter))
		if err != nil {
			return nil, &storeOpError{op: "persistent match: TopicHash[" + filter + "]", err: err}
		}
		for clientID, qosStr := range entries {
			qos, _ := strconv.Atoi(qosStr)
			out = append(out, cloneSubscription(record.Subscription{
				ClientID: clientID, Filter: filter, QoS: byte(qos),
			}))
		}
	}
	return out, nil
}

// WarmCache rebuilds the inner cache from the remote store: the full
// TopicSet and every TopicHash[t]. Until it has completed, MatchTopics
// reads from the store rather than the cache. SubscriptionService does
// not call it on its own; its owner runs it through Service.WarmCache.
func (x *Index) WarmCache(ctx context.Context) error {
	if x.cache == nil {
		return nil
	}

	x.warmMu.Lock()
	defer x.warmMu.Unlock()

	x.cache.Clear()

	allTopics, err := x.store.SetMembers(ctx, x.keys.TopicSetKey)
	if err != nil {
		return &storeOpError{op: "warmCache: TopicSet", err: err}
	}

	for _, filter := range allTopics {
		x.cache.PutTopic(filter)
		entries, err := x.store.HashEntries(ctx, x.keys.topicHashKey(filter))
		if err != nil {
			return &storeOpError{op: "warmCache: TopicHash[" + filter + "]", err: err}
		}
		for clientID, qosStr := range entries {
			qos, _ := strconv.Atoi(qosStr)
			x.cache.PutClient(filter, clientID, byte(qos))
		}
	}

	x.warm = true
	return nil
}

// Warm reports whether WarmCache has completed successfully at least
// once. Always true when no cache is configured, since there is nothing
// to warm.
func (x *Index) Warm() bool {
	if x.cache == nil {
		return true
	}
	x.warmMu.Lock()
	defer x.warmMu.Unlock()
	return x.warm
}

// ApplyDelTopic handles an authoritative "this topic has no subscribers
// anywhere" signal: it removes topic from the remote TopicSet and, if
// enabled, from the inner cache. It is best-effort against the remote
// store — callers log rather than fail loudly, per the spec's treatment
// of DEL_TOPIC as an externally triggered administrative event.
func (x *Index) ApplyDelTopic(ctx context.Context, topic string) error {
	err := x.store.HashDelete(ctx, x.keys.topicHashKey(topic))
	if setErr := x.store.SetRemove(ctx, x.keys.TopicSetKey, topic); setErr != nil && err == nil {
		err = setErr
	}
	if x.cache != nil {
		x.cache.RemoveTopic(topic)
	}
	return err
}

// MirrorAdd updates the inner cache only, with no remote-store write. It
// is how an inbound cluster SUB event reaches this node's cache: the
// originating node already performed the authoritative Add against the
// shared store, so replaying that write here would be redundant.
// A no-op when the cache is disabled.
func (x *Index) MirrorAdd(ctx context.Context, r record.Subscription) error {
	if x.cache == nil {
		return nil
	}
	x.cache.PutTopic(r.Filter)
	x.cache.PutClient(r.Filter, r.ClientID, r.QoS)
	return nil
}

// MirrorRemove updates the inner cache only, mirroring an inbound
// cluster UNSUB event. A no-op when the cache is disabled.
func (x *Index) MirrorRemove(clientID string, topicFilters []string) {
	if x.cache == nil {
		return
	}
	for _, t := range topicFilters {
		x.cache.RemoveClient(t, clientID)
	}
}

// CachedClientTopics returns the topics clientId currently holds
// according to the inner cache, by scanning CachedTopicClients. It is
// authoritative only when the inner cache is enabled, which is why
// SubscriptionService documents the same caveat for
// ClearUnAuthorizedClientSub.
func (x *Index) CachedClientTopics(clientID string) []string {
	if x.cache == nil {
		return nil
	}
	var out []string
	for _, topic := range x.cache.Topics() {
		if _, ok := x.cache.ClientsOf(topic)[clientID]; ok {
			out = append(out, topic)
		}
	}
	return out
}

func cloneSubscription(r record.Subscription) record.Subscription {
	var out record.Subscription
	_ = copier.Copy(&out, &r)
	return out
}

// storeOpError is the persistent-index flavoured cause wrapped by the
// facade's StoreError/PartialStoreError.
type storeOpError struct {
	op     string
	failed []string
	err    error
}

func (e *storeOpError) Error() string {
	if len(e.failed) > 0 {
		return fmt.Sprintf("%s: partial failure in %v: %v", e.op, e.failed, e.err)
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *storeOpError) Unwrap() error { return e.err }

// Failed returns the names of the sub-operations that failed, if this
// error came from a multi-op call like Add.
func (e *storeOpError) Failed() []string { return e.failed }

// runConcurrently runs every op in ops on its own goroutine and waits
// for all of them, per the spec's "all three mutations ... submitted and
// their completions awaited together" requirement. It returns the names
// of the ops that failed and the last error observed, or a nil error if
// every op succeeded.
func runConcurrently(ops map[string]func() error) ([]string, error) {
	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(ops))

	var wg sync.WaitGroup
	for name, op := range ops {
		wg.Add(1)
		go func(name string, op func() error) {
			defer wg.Done()
			results <- result{name: name, err: op()}
		}(name, op)
	}
	wg.Wait()
	close(results)

	var failed []string
	var lastErr error
	for r := range results {
		if r.err != nil {
			failed = append(failed, r.name)
			lastErr = r.err
		}
	}
	return failed, lastErr
}
