// Package persistent bridges durable-session (clean-session=false)
// subscriptions to an abstract remote key-value store, and, when an
// inner cache is configured, keeps a coherent local mirror of it.
package persistent

import (
	"context"
	"errors"
)

// ErrNotConnected is available to Store implementations that need to
// report a store not opened yet or a lost connection. Neither MemStore
// nor redisstore returns it.
var ErrNotConnected = errors.New("persistent: store not connected")

// Store is the abstract remote key-value store described in the spec's
// external interfaces: a set collection (TopicSet, ClientTopicSet) and a
// hash collection (TopicHash), addressed by caller-supplied keys so the
// prefixes stay a configuration concern rather than a Store concern.
//
// Every method takes a context and returns an error; callers are
// expected to run these off the calling goroutine (see
// internal/async.Pool) since they may block on network I/O.
type Store interface {
	// SetAdd adds member to the set at key.
	SetAdd(ctx context.Context, key, member string) error
	// SetRemove removes member from the set at key. Removing an absent
	// member is not an error.
	SetRemove(ctx context.Context, key, member string) error
	// SetMembers returns every member of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)
	// SetDelete deletes the set at key entirely.
	SetDelete(ctx context.Context, key string) error

	// HashPut sets field to value within the hash at key.
	HashPut(ctx context.Context, key, field, value string) error
	// HashRemove removes field from the hash at key. Removing an absent
	// field is not an error.
	HashRemove(ctx context.Context, key, field string) error
	// HashEntries returns every field/value pair of the hash at key.
	HashEntries(ctx context.Context, key string) (map[string]string, error)
	// HashDelete deletes the hash at key entirely, the hash-collection
	// counterpart of SetDelete. Deleting an absent hash is not an error.
	HashDelete(ctx context.Context, key string) error
}
