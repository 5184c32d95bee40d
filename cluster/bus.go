package cluster

import "context"

// Bus is the abstract named publish/subscribe channel the spec's
// external interfaces describe: opaque bytes in, opaque bytes out,
// addressed by a fixed channel name. Delivery is best-effort — the spec
// requires no acknowledgement for outbound publishes.
type Bus interface {
	// Publish sends payload on channel. Agent.Emit logs a returned error
	// and never fails a local mutation because of one.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads received on channel. The
	// returned channel is closed when ctx is done or the subscription
	// otherwise ends.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
