package consensus

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/hashgraph/events"
	"github.com/tolelom/hashgraph/internal/testutil"
)

func TestEngineBootstrapCreatesGenesisWitness(t *testing.T) {
	priv := mustKey(t)
	en := New(4, DefaultCoinPeriod, priv, events.NewEmitter(), rand.New(rand.NewSource(1)))

	ge, err := en.Bootstrap()
	require.NoError(t, err)
	require.Equal(t, 1, en.Graph().Len())

	round, ok := en.RoundTable().Get(ge.Hash)
	require.True(t, ok)
	require.Equal(t, 1, round)

	witnesses := en.WitnessTable().Witnesses(1)
	require.Len(t, witnesses, 1)
	require.Equal(t, ge.Hash, witnesses[0].Hash)
}

func TestEnginePushPullMergesPeerEvent(t *testing.T) {
	privA := mustKey(t)
	privB := mustKey(t)

	enA := New(2, DefaultCoinPeriod, privA, events.NewEmitter(), rand.New(rand.NewSource(1)))
	enB := New(2, DefaultCoinPeriod, privB, events.NewEmitter(), rand.New(rand.NewSource(2)))

	_, err := enA.Bootstrap()
	require.NoError(t, err)
	_, err = enB.Bootstrap()
	require.NoError(t, err)

	require.Equal(t, 1, enB.Graph().Len())

	envelope, err := enA.Push()
	require.NoError(t, err)
	require.NoError(t, enB.Pull(envelope))

	// enB now holds its own genesis, A's genesis, and a new sync event
	// created to acknowledge the merge.
	require.Equal(t, 3, enB.Graph().Len())

	aHead, ok := enA.Graph().Head(enA.PublicKey())
	require.True(t, ok)
	require.True(t, enB.Graph().Has(aHead))
}

func TestEnginePushDeliversThroughRouter(t *testing.T) {
	privA := mustKey(t)
	privB := mustKey(t)

	enA := New(2, DefaultCoinPeriod, privA, events.NewEmitter(), rand.New(rand.NewSource(1)))
	enB := New(2, DefaultCoinPeriod, privB, events.NewEmitter(), rand.New(rand.NewSource(2)))
	_, err := enA.Bootstrap()
	require.NoError(t, err)
	_, err = enB.Bootstrap()
	require.NoError(t, err)

	router := testutil.NewRouter()
	router.Register(enA.PublicKey(), enA.Pull)
	router.Register(enB.PublicKey(), enB.Pull)

	envelope, err := enA.Push()
	require.NoError(t, err)
	require.NoError(t, router.Transport(enA.PublicKey()).Send(enB.PublicKey(), envelope))

	require.True(t, enB.Graph().Len() > 1)
}
