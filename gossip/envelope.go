package gossip

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tolelom/hashgraph/crypto"
)

// Envelope is the authenticated transport contract: the receiver trusts
// the outer signature for sender identity, independent of the per-event
// signatures checked again during event.Validate.
type Envelope struct {
	SenderPub string // hex ed25519 public key
	Signature string // hex ed25519 signature over Payload
	Payload   []byte // gossip.Encode output
	SyncID    string // correlation id for this exchange, for logging/tracing
}

// Seal signs payload under priv and tags the exchange with a fresh
// correlation id for logging and tracing.
func Seal(priv crypto.PrivateKey, payload []byte) Envelope {
	return Envelope{
		SenderPub: priv.Public().Hex(),
		Signature: crypto.Sign(priv, payload),
		Payload:   payload,
		SyncID:    uuid.New().String(),
	}
}

// Open verifies env's outer signature and returns the payload bytes for
// gossip.Decode. A forged sender key or tampered payload is rejected here,
// before any event in the payload is ever looked at.
func Open(env Envelope) ([]byte, error) {
	pub, err := crypto.PubKeyFromHex(env.SenderPub)
	if err != nil {
		return nil, fmt.Errorf("gossip: invalid sender key: %w", err)
	}
	if err := crypto.Verify(pub, env.Payload, env.Signature); err != nil {
		return nil, fmt.Errorf("gossip: envelope signature invalid: %w", err)
	}
	return env.Payload, nil
}
