// Package consensus implements divide-rounds, decide-fame, and find-order:
// the virtual-voting protocol that turns a raw hashgraph DAG into a total,
// eventually-agreed order on transactions.
package consensus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/hashgraph/graph"
)

// ErrForkDetected mirrors graph.ErrForkDetected at the witness-table layer:
// a creator already holds a witness for (round, creator) and a second,
// different candidate has arrived. The candidate is rejected; it is not
// registered as a witness, though it remains in the DAG.
var ErrForkDetected = errors.New("consensus: fork detected in witness table")

// RoundTable is the write-once hash -> round map. Once a round is
// assigned it never changes.
type RoundTable struct {
	mu     sync.RWMutex
	rounds map[string]int
	max    int
}

func NewRoundTable() *RoundTable {
	return &RoundTable{rounds: make(map[string]int)}
}

// Get returns the round assigned to hash, if any.
func (rt *RoundTable) Get(hash string) (int, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	r, ok := rt.rounds[hash]
	return r, ok
}

// Set assigns round to hash. Re-setting the same round is a no-op;
// attempting to change an already-assigned round is a programmer error —
// divide-rounds never revisits an event once its round is set.
func (rt *RoundTable) Set(hash string, round int) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if existing, ok := rt.rounds[hash]; ok {
		if existing == round {
			return nil
		}
		return fmt.Errorf("consensus: round of %s already set to %d, refusing to change to %d", hash, existing, round)
	}
	rt.rounds[hash] = round
	if round > rt.max {
		rt.max = round
	}
	return nil
}

// MaxRound returns the highest round assigned so far, or 0 if empty.
func (rt *RoundTable) MaxRound() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.max
}

// WitnessEntry names the creator/hash pair for one witness-table slot.
type WitnessEntry struct {
	Creator string
	Hash    string
}

// WitnessTable is round -> creator -> hash, at most one hash per
// (round, creator) pair.
type WitnessTable struct {
	mu    sync.RWMutex
	table map[int]map[string]string
	max   int
}

func NewWitnessTable() *WitnessTable {
	return &WitnessTable{table: make(map[int]map[string]string)}
}

// Register records hash as the witness of (round, creator). Re-registering
// the same hash is a no-op. A different hash for an already-occupied slot
// is a fork: the slot is left untouched and ErrForkDetected is returned.
func (wt *WitnessTable) Register(round int, creator, hash string) error {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	if wt.table[round] == nil {
		wt.table[round] = make(map[string]string)
	}
	if existing, ok := wt.table[round][creator]; ok {
		if existing == hash {
			return nil
		}
		return fmt.Errorf("%w: round %d creator %s", ErrForkDetected, round, creator)
	}
	wt.table[round][creator] = hash
	if round > wt.max {
		wt.max = round
	}
	return nil
}

// Witnesses returns the registered witnesses of round, sorted by creator
// for deterministic iteration across nodes.
func (wt *WitnessTable) Witnesses(round int) []WitnessEntry {
	wt.mu.RLock()
	defer wt.mu.RUnlock()
	m := wt.table[round]
	out := make([]WitnessEntry, 0, len(m))
	for c, h := range m {
		out = append(out, WitnessEntry{Creator: c, Hash: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Creator < out[j].Creator })
	return out
}

// MaxRound returns the highest round with at least one registered witness.
func (wt *WitnessTable) MaxRound() int {
	wt.mu.RLock()
	defer wt.mu.RUnlock()
	return wt.max
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// DivideRounds assigns a round (and, where applicable, registers a
// witness) to each hash in events, which must already be in topological
// order — typically graph.TopologicalSort's output from a just-completed
// gossip merge. Fork rejections are collected and returned together so one
// forged witness does not block round assignment for the rest of the
// batch.
func DivideRounds(g *graph.Graph, rt *RoundTable, wt *WitnessTable, events []string) []error {
	var errs []error
	n := g.N()

	for _, hash := range events {
		ev, ok := g.Get(hash)
		if !ok {
			errs = append(errs, fmt.Errorf("consensus: divide-rounds: unknown event %s", hash))
			continue
		}

		var rParent int
		if ev.IsGenesis() {
			rParent = 1
		} else {
			rSelf, _ := rt.Get(ev.Body.Parents.SelfParent)
			rOther, _ := rt.Get(ev.Body.Parents.OtherParent)
			rParent = maxInt(rSelf, rOther)
			if rParent == 0 {
				rParent = 1
			}
		}

		count := 0
		for _, w := range wt.Witnesses(rParent) {
			if g.StronglySees(hash, w.Hash) {
				count++
			}
		}

		round := rParent
		if float64(count) > float64(2*n)/3.0 {
			round = rParent + 1
		}

		if err := rt.Set(hash, round); err != nil {
			errs = append(errs, err)
			continue
		}

		isWitness := ev.IsGenesis()
		if !isWitness {
			selfRound, ok := rt.Get(ev.Body.Parents.SelfParent)
			isWitness = ok && round > selfRound
		}
		if isWitness {
			if err := wt.Register(round, ev.Body.Creator, hash); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errs
}
