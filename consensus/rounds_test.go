package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/hashgraph/crypto"
	"github.com/tolelom/hashgraph/event"
	"github.com/tolelom/hashgraph/graph"
)

func mustKey(t *testing.T) crypto.PrivateKey {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return priv
}

func TestRoundTableSetIsWriteOnce(t *testing.T) {
	rt := NewRoundTable()
	require.NoError(t, rt.Set("h1", 1))
	require.NoError(t, rt.Set("h1", 1)) // re-set same value is a no-op
	require.Error(t, rt.Set("h1", 2))

	r, ok := rt.Get("h1")
	require.True(t, ok)
	require.Equal(t, 1, r)
	require.Equal(t, 1, rt.MaxRound())
}

func TestWitnessTableRegisterRejectsFork(t *testing.T) {
	wt := NewWitnessTable()
	require.NoError(t, wt.Register(1, "creatorA", "hashA"))
	require.NoError(t, wt.Register(1, "creatorA", "hashA")) // idempotent
	err := wt.Register(1, "creatorA", "hashA-fork")
	require.ErrorIs(t, err, ErrForkDetected)

	witnesses := wt.Witnesses(1)
	require.Len(t, witnesses, 1)
	require.Equal(t, "hashA", witnesses[0].Hash)
}

func TestDivideRoundsAssignsGenesisWitnesses(t *testing.T) {
	g := graph.New(4)
	privA := mustKey(t)
	privB := mustKey(t)

	a1, err := event.Create(privA, nil, event.GenesisParents())
	require.NoError(t, err)
	require.NoError(t, g.Add(a1, a1.Hash))
	b1, err := event.Create(privB, nil, event.GenesisParents())
	require.NoError(t, err)
	require.NoError(t, g.Add(b1, b1.Hash))

	rt := NewRoundTable()
	wt := NewWitnessTable()
	errs := DivideRounds(g, rt, wt, []string{a1.Hash, b1.Hash})
	require.Empty(t, errs)

	round, ok := rt.Get(a1.Hash)
	require.True(t, ok)
	require.Equal(t, 1, round)

	witnesses := wt.Witnesses(1)
	require.Len(t, witnesses, 2)
}

func TestDivideRoundsNonWitnessSyncEventStaysAtParentRound(t *testing.T) {
	g := graph.New(4)
	privA := mustKey(t)
	privB := mustKey(t)

	a1, err := event.Create(privA, nil, event.GenesisParents())
	require.NoError(t, err)
	require.NoError(t, g.Add(a1, a1.Hash))
	b1, err := event.Create(privB, nil, event.GenesisParents())
	require.NoError(t, err)
	require.NoError(t, g.Add(b1, b1.Hash))

	rt := NewRoundTable()
	wt := NewWitnessTable()
	require.Empty(t, DivideRounds(g, rt, wt, []string{a1.Hash, b1.Hash}))

	a2, err := event.Create(privA, nil, event.RegularParents(a1.Hash, b1.Hash))
	require.NoError(t, err)
	require.NoError(t, g.Add(a2, a2.Hash))
	require.Empty(t, DivideRounds(g, rt, wt, []string{a2.Hash}))

	round, ok := rt.Get(a2.Hash)
	require.True(t, ok)
	require.Equal(t, 1, round) // not enough strongly-seen witnesses yet to advance

	// a2 is not a witness: its round equals its self-parent's round.
	for _, w := range wt.Witnesses(1) {
		require.NotEqual(t, a2.Hash, w.Hash)
	}
}

func TestFameTableSetIsMonotonic(t *testing.T) {
	ft := NewFameTable()
	require.NoError(t, ft.Set("w1", true))
	require.NoError(t, ft.Set("w1", true)) // re-set same verdict is a no-op
	require.Error(t, ft.Set("w1", false))

	famous, decided := ft.Get("w1")
	require.True(t, decided)
	require.True(t, famous)
}

func TestVoteTablePrune(t *testing.T) {
	vt := NewVoteTable()
	vt.Set("voterA", "target", true)
	vt.Set("voterB", "target", false)
	vt.Prune([]string{"voterA"})

	_, ok := vt.Get("voterA", "target")
	require.False(t, ok)
	_, ok = vt.Get("voterB", "target")
	require.True(t, ok)
}
