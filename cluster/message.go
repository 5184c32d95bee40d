// Package cluster implements the gossip protocol that keeps the
// subscription index coherent across nodes: encoding/decoding
// subscription events, publishing them on an abstract bus, and applying
// inbound events to the local ephemeral/persistent indices.
package cluster

import (
	"encoding/json"
	"fmt"

	"github.com/rs/xid"
)

// EventType enumerates the kinds of subscription event gossiped between
// nodes.
type EventType byte

const (
	// Sub announces a new or updated subscription.
	Sub EventType = 1
	// Unsub announces one or more topics a client no longer subscribes to.
	Unsub EventType = 2
	// DelTopic is the authoritative "nobody subscribes to this topic
	// anywhere" signal. Nothing in this module emits it autonomously; it
	// arrives from an administrative path outside this subsystem.
	DelTopic EventType = 3
)

func (t EventType) String() string {
	switch t {
	case Sub:
		return "SUB"
	case Unsub:
		return "UNSUB"
	case DelTopic:
		return "DEL_TOPIC"
	default:
		return fmt.Sprintf("EventType(%d)", t)
	}
}

// ClientSubOrUnsubMsg is the event payload gossiped on the subscription
// channel. Fields not relevant to a given Type are left zero-valued;
// the spec names exactly which fields apply to which type.
type ClientSubOrUnsubMsg struct {
	Type           EventType `json:"type"`
	ClientID       string    `json:"clientId"`
	QoS            byte      `json:"qos,omitempty"`    // SUB only
	Topic          string    `json:"topic,omitempty"`  // SUB or DEL_TOPIC
	Topics         []string  `json:"topics,omitempty"` // UNSUB, may be multiple
	CleanSession   bool      `json:"cleanSession"`
	OriginBrokerID string    `json:"originBrokerId"`
	TimestampMs    int64     `json:"timestampMs"`
}

// InternalMessage is the transport envelope around an event. It carries
// its own id so duplicate detection/logging downstream has something to
// key on, independent of the event's own content.
type InternalMessage struct {
	ID        string              `json:"id"`
	Data      ClientSubOrUnsubMsg `json:"data"`
	Timestamp int64               `json:"timestamp"`
	BrokerID  string              `json:"brokerId"`
}

// NewEnvelope wraps msg for a given originating brokerId and timestamp
// (in milliseconds since epoch, supplied by the caller so this package
// never calls time.Now() itself and stays trivially testable).
func NewEnvelope(msg ClientSubOrUnsubMsg, brokerID string, timestampMs int64) InternalMessage {
	return InternalMessage{
		ID:        xid.New().String(),
		Data:      msg,
		Timestamp: timestampMs,
		BrokerID:  brokerID,
	}
}

// Codec encodes/decodes an InternalMessage to/from the opaque bytes
// carried on the bus. Implementations must round-trip whether the
// receiver decodes directly into InternalMessage or into a generic
// envelope followed by a separate payload decode.
type Codec interface {
	Encode(InternalMessage) ([]byte, error)
	Decode([]byte) (InternalMessage, error)
}

// JSONCodec is the default Codec, matching the teacher's own
// encoding/json-based cluster.Message wire format field-for-field.
type JSONCodec struct{}

func (JSONCodec) Encode(m InternalMessage) ([]byte, error) {
	return json.Marshal(m)
}

func (JSONCodec) Decode(b []byte) (InternalMessage, error) {
	var m InternalMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
