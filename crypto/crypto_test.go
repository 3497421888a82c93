package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairAndHex(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)
	require.Len(t, pub.Hex(), 64)
	require.Equal(t, pub.Hex(), priv.Public().Hex())
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	data := []byte("hello hashgraph")
	sig := Sign(priv, data)
	require.NoError(t, Verify(pub, data, sig))
	require.Error(t, Verify(pub, []byte("tampered"), sig))
}

func TestHashEqual(t *testing.T) {
	a := Hash([]byte("a"))
	b := Hash([]byte("b"))
	require.True(t, HashEqual(a, a))
	require.False(t, HashEqual(a, b))
	require.False(t, HashEqual("not-hex", a))
}

func TestPubKeyFromHexRoundTrip(t *testing.T) {
	_, pub, err := GenerateKeyPair()
	require.NoError(t, err)
	decoded, err := PubKeyFromHex(pub.Hex())
	require.NoError(t, err)
	require.Equal(t, pub, decoded)

	_, err = PubKeyFromHex("deadbeef")
	require.Error(t, err)
}
