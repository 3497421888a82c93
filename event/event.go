// Package event implements event construction, canonical encoding, and
// local validation — the atoms of the hashgraph DAG. An Event is immutable
// once created; nothing in this package mutates a *Event after Create
// returns it.
package event

import (
	"fmt"
	"time"

	"github.com/tolelom/hashgraph/crypto"
)

// ParentKind distinguishes a genesis event (no parents) from a regular
// event (exactly two parents) with a concrete tagged variant instead of
// relying on emptiness conventions alone.
type ParentKind uint8

const (
	ParentsGenesis ParentKind = iota
	ParentsRegular
)

// Parents is empty for a genesis event, or an ordered (self, other) pair
// of parent hashes for a regular event.
type Parents struct {
	Kind        ParentKind
	SelfParent  string
	OtherParent string
}

// GenesisParents returns the empty-parent marker for a creator's first event.
func GenesisParents() Parents {
	return Parents{Kind: ParentsGenesis}
}

// RegularParents returns a (self, other) parent pair for a non-genesis event.
func RegularParents(self, other string) Parents {
	return Parents{Kind: ParentsRegular, SelfParent: self, OtherParent: other}
}

// Body holds the fields that are signed: creator, timestamp, transactions,
// parents, in this fixed order.
type Body struct {
	Creator      string   // hex-encoded ed25519 public key
	Timestamp    int64    // node-local wall clock, UnixNano, when created
	Transactions [][]byte // opaque payloads; never interpreted by this package
	Parents      Parents
}

// Event is an immutable, signed, content-addressed DAG node.
type Event struct {
	Body      Body
	Signature string // hex-encoded ed25519 signature over encodeBody(Body)
	Hash      string // hex-encoded SHA-256 of encodeFull(Event); the event's identity
}

// Create stamps the current wall clock, signs (creator, timestamp,
// transactions, parents) with priv, and computes the event's identity
// hash over the full event including the signature.
// Create does not touch any local store; the caller is responsible for
// resolving and validating parents before calling Create with them.
func Create(priv crypto.PrivateKey, transactions [][]byte, parents Parents) (*Event, error) {
	body := Body{
		Creator:      priv.Public().Hex(),
		Timestamp:    time.Now().UnixNano(),
		Transactions: transactions,
		Parents:      parents,
	}
	bodyBytes, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("event: encode body: %w", err)
	}
	e := &Event{
		Body:      body,
		Signature: crypto.Sign(priv, bodyBytes),
	}
	fullBytes, err := encodeFull(e)
	if err != nil {
		return nil, fmt.Errorf("event: encode full: %w", err)
	}
	e.Hash = crypto.Hash(fullBytes)
	return e, nil
}

// ParentResolver answers "who created the event at this hash", letting
// Validate check the self/other-parent creator relation without importing
// the graph package (which itself imports event, to avoid a cycle).
type ParentResolver interface {
	CreatorOf(hash string) (creator string, ok bool)
}

// Validate performs purely local, side-effect-free checks: the claimed
// hash must match the recomputed one, the signature must verify under
// the event's own creator, and (for non-genesis events) both parents
// must resolve locally and satisfy the self/other creator relation.
func Validate(e *Event, claimedHash string, resolver ParentResolver) error {
	fullBytes, err := encodeFull(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHashMismatch, err)
	}
	recomputed := crypto.Hash(fullBytes)
	if !crypto.HashEqual(claimedHash, recomputed) {
		return ErrHashMismatch
	}

	pub, err := crypto.PubKeyFromHex(e.Body.Creator)
	if err != nil {
		return fmt.Errorf("%w: invalid creator key: %v", ErrBadSignature, err)
	}
	bodyBytes, err := encodeBody(e.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if err := crypto.Verify(pub, bodyBytes, e.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	if e.Body.Parents.Kind == ParentsGenesis {
		if e.Body.Parents.SelfParent != "" || e.Body.Parents.OtherParent != "" {
			return ErrMalformedParents
		}
		return nil
	}

	p := e.Body.Parents
	if p.SelfParent == "" || p.OtherParent == "" {
		return ErrMalformedParents
	}
	selfCreator, ok := resolver.CreatorOf(p.SelfParent)
	if !ok {
		return fmt.Errorf("%w: self_parent %s", ErrUnknownParent, p.SelfParent)
	}
	otherCreator, ok := resolver.CreatorOf(p.OtherParent)
	if !ok {
		return fmt.Errorf("%w: other_parent %s", ErrUnknownParent, p.OtherParent)
	}
	if selfCreator != e.Body.Creator {
		return fmt.Errorf("%w: self_parent creator mismatch", ErrMalformedParents)
	}
	if otherCreator == e.Body.Creator {
		return fmt.Errorf("%w: other_parent creator must differ from event creator", ErrMalformedParents)
	}
	return nil
}

// IsGenesis reports whether e has no parents.
func (e *Event) IsGenesis() bool {
	return e.Body.Parents.Kind == ParentsGenesis
}
