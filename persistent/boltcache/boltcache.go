// Package boltcache implements persistent.Cache on top of bbolt, for
// nodes that want the inner cache to survive a process restart without
// a full remote read. It is still reconciled against the remote store
// at warm-up (see persistent.Index.WarmCache) — this is a convenience,
// not a second system of record. Grounded on the teacher's
// hooks/storage/bolt hook, which uses the same Update/View transaction
// idiom against go.etcd.io/bbolt.
package boltcache

import (
	"bytes"
	"log/slog"

	"go.etcd.io/bbolt"
)

var (
	topicsBucket  = []byte("topics")
	clientsBucket = []byte("clients")
	sep           = byte(0)
)

// Cache is a persistent.Cache backed by a bbolt database file.
type Cache struct {
	db  *bbolt.DB
	log *slog.Logger
}

// Open opens (creating if necessary) a bbolt database at path and
// ensures the buckets this cache needs exist.
func Open(path string, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(topicsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(clientsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db, log: log}, nil
}

// Close closes the underlying bbolt database.
func (c *Cache) Close() error { return c.db.Close() }

func clientKey(topic, clientID string) []byte {
	key := make([]byte, 0, len(topic)+1+len(clientID))
	key = append(key, topic...)
	key = append(key, sep)
	key = append(key, clientID...)
	return key
}

func (c *Cache) PutTopic(topic string) {
	c.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(topicsBucket).Put([]byte(topic), []byte{1})
	}, "PutTopic")
}

func (c *Cache) RemoveTopic(topic string) {
	c.update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(topicsBucket).Delete([]byte(topic)); err != nil {
			return err
		}
		return deletePrefix(tx.Bucket(clientsBucket), append([]byte(topic), sep))
	}, "RemoveTopic")
}

func (c *Cache) PutClient(topic, clientID string, qos byte) {
	c.update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(topicsBucket).Put([]byte(topic), []byte{1}); err != nil {
			return err
		}
		return tx.Bucket(clientsBucket).Put(clientKey(topic, clientID), []byte{qos})
	}, "PutClient")
}

func (c *Cache) RemoveClient(topic, clientID string) {
	c.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(clientsBucket).Delete(clientKey(topic, clientID))
	}, "RemoveClient")
}

func (c *Cache) Topics() []string {
	var out []string
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(topicsBucket).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		c.log.Warn("boltcache: Topics scan failed", slog.Any("error", err))
	}
	return out
}

func (c *Cache) ClientsOf(topic string) map[string]byte {
	out := make(map[string]byte)
	prefix := append([]byte(topic), sep)
	err := c.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(clientsBucket).Cursor()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			clientID := string(k[len(prefix):])
			if len(v) == 1 {
				out[clientID] = v[0]
			}
		}
		return nil
	})
	if err != nil {
		c.log.Warn("boltcache: ClientsOf scan failed", slog.String("topic", topic), slog.Any("error", err))
	}
	return out
}

func (c *Cache) Clear() {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(topicsBucket); err != nil {
			return err
		}
		if err := tx.DeleteBucket(clientsBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(topicsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(clientsBucket)
		return err
	})
	if err != nil {
		c.log.Warn("boltcache: Clear failed", slog.Any("error", err))
	}
}

func (c *Cache) update(fn func(tx *bbolt.Tx) error, op string) {
	if err := c.db.Update(fn); err != nil {
		c.log.Warn("boltcache: operation failed", slog.String("op", op), slog.Any("error", err))
	}
}

func deletePrefix(bucket *bbolt.Bucket, prefix []byte) error {
	cur := bucket.Cursor()
	var keys [][]byte
	for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
		keys = append(keys, append([]byte{}, k...))
	}
	for _, k := range keys {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
