package keystore

import "github.com/tolelom/hashgraph/crypto"

// Identity holds a node's key pair. It builds no transactions: this
// engine treats transactions as opaque payloads, so the only thing an
// Identity does is sign events, which event.Create already handles given
// the raw PrivateKey. Identity exists for the places a typed handle is
// more convenient than a bare key, such as keystore loading/generation
// and RPC identity display.
type Identity struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New wraps an existing private key as an Identity.
func New(priv crypto.PrivateKey) *Identity {
	return &Identity{priv: priv, pub: priv.Public()}
}

// Generate creates an Identity with a freshly generated key pair.
func Generate() (*Identity, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (id *Identity) PrivKey() crypto.PrivateKey {
	return id.priv
}

// PubKey returns the hex-encoded ed25519 public key, this node's identity
// within the participant set.
func (id *Identity) PubKey() string {
	return id.pub.Hex()
}
