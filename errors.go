package subindex

import (
	"errors"
	"fmt"
)

// StoreError wraps a failure talking to the remote key-value store. It is
// returned verbatim to the caller of a persistent-path operation; no
// local state has changed when this error surfaces.
type StoreError struct {
	Op  string // the logical operation that failed, e.g. "TopicHash.put"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("subindex: store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewPartialStoreError builds the StoreError surfaced when some of the
// sub-operations of a persistent subscribe/unsubscribe succeeded and some
// failed. It is always safe to retry the whole operation: every
// sub-operation is idempotent, so a retry heals whatever state the
// partial failure left behind.
func NewPartialStoreError(op string, failed []string, cause error) *StoreError {
	return &StoreError{
		Op:  fmt.Sprintf("%s (partial failure: %v)", op, failed),
		Err: cause,
	}
}

// BusError wraps a failure publishing a cluster event. It is logged, not
// surfaced to the caller: local state is already correct, and peers will
// resync on the next subscribe for that topic, or on their next cache
// rebuild.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("subindex: bus error during %s: %v", e.Op, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// DecodeError wraps a malformed inbound cluster event. It is logged and
// the event is dropped; it never reaches the caller of any public method.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("subindex: could not decode inbound cluster event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProtocolError indicates an inbound cluster event of unknown type, or a
// subscription request that fails basic structural validation (see
// topics.ValidFilter). Logged and dropped for inbound events; returned to
// the caller for request validation.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("subindex: protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

var (
	// ErrNilSubscriber is returned by Subscribe when the record is missing
	// required identity fields.
	ErrNilSubscriber = errors.New("subindex: clientId and filter must not be empty")
	// ErrInvalidQoS is returned by Subscribe for a QoS outside {0,1,2}.
	ErrInvalidQoS = errors.New("subindex: qos must be 0, 1 or 2")
	// ErrClosed is returned by Subscribe, Unsubscribe,
	// SearchSubscribeClientList, ClearClientSubscriptions,
	// ClearUnAuthorizedClientSub, SubscribeSys and UnsubscribeSys when
	// called after Close.
	ErrClosed = errors.New("subindex: service is closed")
)
