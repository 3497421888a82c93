package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/hashgraph/crypto"
	"github.com/tolelom/hashgraph/event"
)

func mustKey(t *testing.T) crypto.PrivateKey {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return priv
}

func mustGenesis(t *testing.T, g *Graph, priv crypto.PrivateKey) *event.Event {
	t.Helper()
	e, err := event.Create(priv, nil, event.GenesisParents())
	require.NoError(t, err)
	require.NoError(t, g.Add(e, e.Hash))
	return e
}

func mustSync(t *testing.T, g *Graph, priv crypto.PrivateKey, self, other string) *event.Event {
	t.Helper()
	e, err := event.Create(priv, nil, event.RegularParents(self, other))
	require.NoError(t, err)
	require.NoError(t, g.Add(e, e.Hash))
	return e
}

func TestAddIdempotent(t *testing.T) {
	g := New(4)
	privA := mustKey(t)
	a1 := mustGenesis(t, g, privA)
	require.Equal(t, 1, g.Len())
	require.NoError(t, g.Add(a1, a1.Hash)) // re-add is a no-op
	require.Equal(t, 1, g.Len())
}

func TestHeadAdvancesAlongSelfChain(t *testing.T) {
	g := New(4)
	privA, privB := mustKey(t), mustKey(t)
	a1 := mustGenesis(t, g, privA)
	b1 := mustGenesis(t, g, privB)
	a2 := mustSync(t, g, privA, a1.Hash, b1.Hash)

	head, ok := g.Head(a1.Body.Creator)
	require.True(t, ok)
	require.Equal(t, a2.Hash, head)
}

func TestForkDetected(t *testing.T) {
	g := New(2)
	privA := mustKey(t)

	a1, err := event.Create(privA, nil, event.GenesisParents())
	require.NoError(t, err)
	require.NoError(t, g.Add(a1, a1.Hash))

	// A second genesis event from the same creator occupies the same
	// self-chain position (0) as a1, but is a distinct event.
	a1fork, err := event.Create(privA, [][]byte{[]byte("divergent")}, event.GenesisParents())
	require.NoError(t, err)
	require.NotEqual(t, a1.Hash, a1fork.Hash)

	err = g.Add(a1fork, a1fork.Hash)
	require.ErrorIs(t, err, ErrForkDetected)
	require.True(t, g.IsForked(privA.Public().Hex()))
	// The forked event is still stored, not rejected outright.
	require.True(t, g.Has(a1fork.Hash))
}

// buildAncestryFixture wires up a small 4-participant graph shaped so
// StronglySees(c2, b1) crosses the >2N/3 threshold through exactly three
// distinct creators (A, B, C), while D never participates.
func buildAncestryFixture(t *testing.T) (g *Graph, a1, b1, c1, d1, a2, c2 *event.Event) {
	t.Helper()
	g = New(4)
	privA, privB, privC, privD := mustKey(t), mustKey(t), mustKey(t), mustKey(t)

	a1 = mustGenesis(t, g, privA)
	b1 = mustGenesis(t, g, privB)
	c1 = mustGenesis(t, g, privC)
	d1 = mustGenesis(t, g, privD)

	a2 = mustSync(t, g, privA, a1.Hash, b1.Hash)
	c2 = mustSync(t, g, privC, c1.Hash, a2.Hash)
	return
}

func TestIsAncestor(t *testing.T) {
	g, a1, b1, _, d1, _, c2 := buildAncestryFixture(t)

	require.True(t, g.IsAncestor(a1.Hash, c2.Hash))
	require.True(t, g.IsAncestor(b1.Hash, c2.Hash))
	require.True(t, g.IsAncestor(c2.Hash, c2.Hash)) // ancestor-or-self
	require.False(t, g.IsAncestor(d1.Hash, c2.Hash))
}

func TestSees(t *testing.T) {
	g, a1, b1, _, _, _, c2 := buildAncestryFixture(t)
	require.True(t, g.Sees(c2.Hash, a1.Hash))
	require.True(t, g.Sees(c2.Hash, b1.Hash))
}

func TestStronglySeesCrossesThreshold(t *testing.T) {
	g, _, b1, _, d1, _, c2 := buildAncestryFixture(t)
	// A, B, C each contribute a qualifying intermediate event seeing b1 -
	// three creators out of four clears the 2*4/3 threshold.
	require.True(t, g.StronglySees(c2.Hash, b1.Hash))
	// Nothing in c2's ancestry ever sees d1.
	require.False(t, g.StronglySees(c2.Hash, d1.Hash))
}

func TestTopologicalSortOrdersByDependency(t *testing.T) {
	g := New(4)
	privA, privB := mustKey(t), mustKey(t)
	a1, err := event.Create(privA, nil, event.GenesisParents())
	require.NoError(t, err)
	b1, err := event.Create(privB, nil, event.GenesisParents())
	require.NoError(t, err)
	a2, err := event.Create(privA, nil, event.RegularParents(a1.Hash, b1.Hash))
	require.NoError(t, err)

	view := map[string]*event.Event{a1.Hash: a1, b1.Hash: b1, a2.Hash: a2}
	order, err := TopologicalSort(view, g.Has)
	require.NoError(t, err)
	require.Len(t, order, 3)

	pos := make(map[string]int, len(order))
	for i, h := range order {
		pos[h] = i
	}
	require.Less(t, pos[a1.Hash], pos[a2.Hash])
	require.Less(t, pos[b1.Hash], pos[a2.Hash])
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	// Two events that claim each other as self-parent: neither is
	// resolvable locally nor from within the view alone.
	loopA := &event.Event{Body: event.Body{Creator: "a", Parents: event.RegularParents("loop-b", "")}, Hash: "loop-a"}
	loopB := &event.Event{Body: event.Body{Creator: "b", Parents: event.RegularParents("loop-a", "")}, Hash: "loop-b"}
	view := map[string]*event.Event{"loop-a": loopA, "loop-b": loopB}

	_, err := TopologicalSort(view, func(string) bool { return false })
	require.ErrorIs(t, err, ErrCycleDetected)
}
