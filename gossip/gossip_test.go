package gossip

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/hashgraph/crypto"
	"github.com/tolelom/hashgraph/event"
)

func TestSealOpenRoundTrip(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	payload := []byte("hello peer")
	env := Seal(priv, payload)
	require.NotEmpty(t, env.SyncID)

	got, err := Open(env)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestOpenRejectsTamperedPayload(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	env := Seal(priv, []byte("original"))
	env.Payload = []byte("tampered")

	_, err = Open(env)
	require.Error(t, err)
}

func TestEncodeDecodePayloadRoundTrip(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	ge, err := event.Create(priv, nil, event.GenesisParents())
	require.NoError(t, err)

	p := Payload{SenderHead: ge.Hash, View: map[string]*event.Event{ge.Hash: ge}}
	data, err := Encode(p)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, p.SenderHead, decoded.SenderHead)
	require.Len(t, decoded.View, 1)
	require.Equal(t, ge.Hash, decoded.View[ge.Hash].Hash)
	require.Equal(t, ge.Signature, decoded.View[ge.Hash].Signature)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version":99,"sender_head":"x","view":{}}`))
	require.Error(t, err)
}
