package persistent

import "sync"

// Cache is the optional inner read cache described in the spec:
// CachedTopics / CachedTopicClients mirrored locally so the publish hot
// path never has to make a remote-store round trip. It is never the
// system of record — writes always land in the Store first — so every
// method here is infallible and local.
type Cache interface {
	// PutTopic marks topic as present in CachedTopics.
	PutTopic(topic string)
	// RemoveTopic deletes topic and all of its cached subscribers.
	RemoveTopic(topic string)
	// PutClient records clientId -> qos under topic in CachedTopicClients,
	// implicitly adding topic to CachedTopics.
	PutClient(topic, clientID string, qos byte)
	// RemoveClient removes clientId from topic's cached subscriber set.
	// It does not prune the topic from CachedTopics even if this empties
	// it — matchers tolerate empty sets, same as the ephemeral index.
	RemoveClient(topic, clientID string)
	// Topics returns every topic currently in CachedTopics.
	Topics() []string
	// ClientsOf returns the cached clientId -> qos map for topic.
	ClientsOf(topic string) map[string]byte
	// Clear empties the cache, used before a full warm-up rebuild.
	Clear()
}

// cacheBucket holds one topic's cached subscribers, guarded by its own
// mutex so that a read or write against one topic is never serialised
// behind a concurrent mirror update for an unrelated topic — the same
// per-key striping ephemeral.Index uses for topicBucket.
type cacheBucket struct {
	mu      sync.RWMutex
	clients map[string]byte // clientId -> qos
}

// MemCache is the default in-process Cache implementation: a sync.Map of
// per-topic buckets, each independently locked.
type MemCache struct {
	topics sync.Map // topic -> *cacheBucket
}

// NewMemCache returns an empty in-memory cache.
func NewMemCache() *MemCache {
	return &MemCache{}
}

func (c *MemCache) PutTopic(topic string) {
	c.bucketFor(topic)
}

func (c *MemCache) RemoveTopic(topic string) {
	c.topics.Delete(topic)
}

func (c *MemCache) PutClient(topic, clientID string, qos byte) {
	b := c.bucketFor(topic)
	b.mu.Lock()
	b.clients[clientID] = qos
	b.mu.Unlock()
}

func (c *MemCache) RemoveClient(topic, clientID string) {
	v, ok := c.topics.Load(topic)
	if !ok {
		return
	}
	b := v.(*cacheBucket)
	b.mu.Lock()
	delete(b.clients, clientID)
	b.mu.Unlock()
}

func (c *MemCache) Topics() []string {
	var out []string
	c.topics.Range(func(key, _ any) bool {
		out = append(out, key.(string))
		return true
	})
	return out
}

func (c *MemCache) ClientsOf(topic string) map[string]byte {
	v, ok := c.topics.Load(topic)
	if !ok {
		return map[string]byte{}
	}
	b := v.(*cacheBucket)
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]byte, len(b.clients))
	for k, val := range b.clients {
		out[k] = val
	}
	return out
}

func (c *MemCache) Clear() {
	c.topics.Range(func(key, _ any) bool {
		c.topics.Delete(key)
		return true
	})
}

func (c *MemCache) bucketFor(topic string) *cacheBucket {
	if v, ok := c.topics.Load(topic); ok {
		return v.(*cacheBucket)
	}
	b := &cacheBucket{clients: make(map[string]byte)}
	actual, _ := c.topics.LoadOrStore(topic, b)
	return actual.(*cacheBucket)
}
