package event

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/hashgraph/crypto"
)

// fakeResolver is a minimal ParentResolver for tests that don't need a
// real graph.Graph.
type fakeResolver map[string]string

func (f fakeResolver) CreatorOf(hash string) (string, bool) {
	creator, ok := f[hash]
	return creator, ok
}

func mustKey(t *testing.T) crypto.PrivateKey {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return priv
}

func TestCreateGenesisValidates(t *testing.T) {
	priv := mustKey(t)
	ge, err := Create(priv, nil, GenesisParents())
	require.NoError(t, err)
	require.True(t, ge.IsGenesis())
	require.NoError(t, Validate(ge, ge.Hash, fakeResolver{}))
}

func TestCreateRegularValidates(t *testing.T) {
	privA := mustKey(t)
	privB := mustKey(t)

	selfGenesis, err := Create(privA, nil, GenesisParents())
	require.NoError(t, err)
	otherGenesis, err := Create(privB, nil, GenesisParents())
	require.NoError(t, err)

	resolver := fakeResolver{
		selfGenesis.Hash:  selfGenesis.Body.Creator,
		otherGenesis.Hash: otherGenesis.Body.Creator,
	}

	sync, err := Create(privA, [][]byte{[]byte("tx1")}, RegularParents(selfGenesis.Hash, otherGenesis.Hash))
	require.NoError(t, err)
	require.False(t, sync.IsGenesis())
	require.NoError(t, Validate(sync, sync.Hash, resolver))
}

func TestValidateRejectsTamperedHash(t *testing.T) {
	priv := mustKey(t)
	ge, err := Create(priv, nil, GenesisParents())
	require.NoError(t, err)
	err = Validate(ge, "not-the-real-hash", fakeResolver{})
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestValidateRejectsTamperedBody(t *testing.T) {
	priv := mustKey(t)
	ge, err := Create(priv, nil, GenesisParents())
	require.NoError(t, err)
	ge.Body.Timestamp++ // tamper after signing/hashing
	err = Validate(ge, ge.Hash, fakeResolver{})
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestValidateRejectsUnknownParent(t *testing.T) {
	privA := mustKey(t)
	ev, err := Create(privA, nil, RegularParents("deadbeef", "beefdead"))
	require.NoError(t, err)
	err = Validate(ev, ev.Hash, fakeResolver{})
	require.ErrorIs(t, err, ErrUnknownParent)
}

func TestValidateRejectsSameCreatorOtherParent(t *testing.T) {
	priv := mustKey(t)
	ge, err := Create(priv, nil, GenesisParents())
	require.NoError(t, err)

	resolver := fakeResolver{ge.Hash: ge.Body.Creator}
	ev, err := Create(priv, nil, RegularParents(ge.Hash, ge.Hash))
	require.NoError(t, err)
	err = Validate(ev, ev.Hash, resolver)
	require.ErrorIs(t, err, ErrMalformedParents)
}

func TestValidateRejectsMalformedGenesisParents(t *testing.T) {
	priv := mustKey(t)
	ev := &Event{Body: Body{Creator: priv.Public().Hex(), Parents: Parents{Kind: ParentsGenesis, SelfParent: "abcd"}}}
	ev.Signature = crypto.Sign(priv, mustEncodeBody(t, ev.Body))
	full, err := encodeFull(ev)
	require.NoError(t, err)
	ev.Hash = crypto.Hash(full)
	err = Validate(ev, ev.Hash, fakeResolver{})
	require.ErrorIs(t, err, ErrMalformedParents)
}

func mustEncodeBody(t *testing.T, b Body) []byte {
	t.Helper()
	data, err := encodeBody(b)
	require.NoError(t, err)
	return data
}
