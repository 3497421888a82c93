// Package gossip implements the signed wire codec for the push/pull
// exchange, deliberately separate from event/encode.go's canonical
// hashing encoder: one encoder exists exclusively for hashing and
// signing, the other is a safe wire codec with explicit versioned
// framing, and neither stands in for the other.
package gossip

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/hashgraph/event"
)

// wireVersion is bumped whenever the wire shape changes incompatibly.
const wireVersion = 1

// wireEvent is the JSON projection of event.Event used on the wire. It is
// intentionally explicit rather than relying on event.Event's own field
// tags, so the wire shape can evolve independently of the in-memory type.
type wireEvent struct {
	Creator      string   `json:"creator"`
	Timestamp    int64    `json:"timestamp"`
	Transactions [][]byte `json:"transactions"`
	ParentKind   uint8    `json:"parent_kind"`
	SelfParent   string   `json:"self_parent,omitempty"`
	OtherParent  string   `json:"other_parent,omitempty"`
	Signature    string   `json:"signature"`
	Hash         string   `json:"hash"`
}

func toWire(e *event.Event) wireEvent {
	return wireEvent{
		Creator:      e.Body.Creator,
		Timestamp:    e.Body.Timestamp,
		Transactions: e.Body.Transactions,
		ParentKind:   uint8(e.Body.Parents.Kind),
		SelfParent:   e.Body.Parents.SelfParent,
		OtherParent:  e.Body.Parents.OtherParent,
		Signature:    e.Signature,
		Hash:         e.Hash,
	}
}

func fromWire(w wireEvent) *event.Event {
	parents := event.Parents{
		Kind:        event.ParentKind(w.ParentKind),
		SelfParent:  w.SelfParent,
		OtherParent: w.OtherParent,
	}
	return &event.Event{
		Body: event.Body{
			Creator:      w.Creator,
			Timestamp:    w.Timestamp,
			Transactions: w.Transactions,
			Parents:      parents,
		},
		Signature: w.Signature,
		Hash:      w.Hash,
	}
}

// Payload is the gossiped (sender_head, sender_view) pair.
type Payload struct {
	SenderHead string
	View       map[string]*event.Event
}

// wirePayload is Payload's JSON-serializable shape.
type wirePayload struct {
	Version    int                  `json:"version"`
	SenderHead string               `json:"sender_head"`
	View       map[string]wireEvent `json:"view"`
}

// Encode serializes p for transmission.
func Encode(p Payload) ([]byte, error) {
	w := wirePayload{
		Version:    wireVersion,
		SenderHead: p.SenderHead,
		View:       make(map[string]wireEvent, len(p.View)),
	}
	for h, e := range p.View {
		w.View[h] = toWire(e)
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("gossip: encode payload: %w", err)
	}
	return data, nil
}

// Decode parses a payload previously produced by Encode. It never invokes
// a reflective/polymorphic deserializer over untrusted input — the wire
// shape is a fixed struct.
func Decode(data []byte) (Payload, error) {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return Payload{}, fmt.Errorf("gossip: decode payload: %w", err)
	}
	if w.Version != wireVersion {
		return Payload{}, fmt.Errorf("gossip: unsupported payload version %d", w.Version)
	}
	p := Payload{SenderHead: w.SenderHead, View: make(map[string]*event.Event, len(w.View))}
	for h, we := range w.View {
		p.View[h] = fromWire(we)
	}
	return p, nil
}
