package subindex

import "github.com/nimbus-mqtt/subindex/record"

// Subscription, SubscriptionKey and ValidQoS are re-exported from the
// record package so callers of this facade never need to import it
// directly.
type (
	Subscription    = record.Subscription
	SubscriptionKey = record.Key
)

// ValidQoS reports whether q is one of the three MQTT QoS levels.
func ValidQoS(q byte) bool { return record.ValidQoS(q) }
