package consensus

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/tolelom/hashgraph/graph"
)

// DefaultCoinPeriod is C: every Cth voting round falls back to a
// pseudorandom tie-break when no supermajority forms.
const DefaultCoinPeriod = 10

// FameTable is the monotonic witness_hash -> fame map. Once a witness's
// fame is decided it is never revisited — later voters are never
// consulted for an already-decided witness.
type FameTable struct {
	mu      sync.RWMutex
	decided map[string]bool
}

func NewFameTable() *FameTable {
	return &FameTable{decided: make(map[string]bool)}
}

// Get reports a witness's fame verdict, if decided.
func (ft *FameTable) Get(hash string) (bool, bool) {
	ft.mu.RLock()
	defer ft.mu.RUnlock()
	v, ok := ft.decided[hash]
	return v, ok
}

// Set records a fame verdict. Re-setting the same verdict is a no-op;
// attempting to flip an already-decided witness is a programmer error.
func (ft *FameTable) Set(hash string, famous bool) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if existing, ok := ft.decided[hash]; ok {
		if existing == famous {
			return nil
		}
		return fmt.Errorf("consensus: fame of %s already decided as %v, refusing to change to %v", hash, existing, famous)
	}
	ft.decided[hash] = famous
	return nil
}

// VoteTable is the voter_hash -> target_witness_hash -> bool scratch
// state. It is safe to prune once the witnesses that cast a given vote
// are no longer needed as voters for any undecided target.
type VoteTable struct {
	mu    sync.Mutex
	votes map[string]map[string]bool
}

func NewVoteTable() *VoteTable {
	return &VoteTable{votes: make(map[string]map[string]bool)}
}

func (vt *VoteTable) Get(voter, target string) (bool, bool) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	m, ok := vt.votes[voter]
	if !ok {
		return false, false
	}
	v, ok := m[target]
	return v, ok
}

func (vt *VoteTable) Set(voter, target string, vote bool) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	if vt.votes[voter] == nil {
		vt.votes[voter] = make(map[string]bool)
	}
	vt.votes[voter][target] = vote
}

// Prune discards every vote cast by the given voters. Call it once a
// round's witnesses have all had their own fame decided, so their votes on
// earlier targets are no longer reachable from any future computation.
func (vt *VoteTable) Prune(voters []string) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	for _, v := range voters {
		delete(vt.votes, v)
	}
}

// coinBit derives the pseudorandom tie-breaking bit from a voter's
// signature: bit 0 of byte 0 of the raw signature.
func coinBit(sigHex string) bool {
	b, err := hex.DecodeString(sigHex)
	if err != nil || len(b) == 0 {
		return false
	}
	return b[0]&1 == 1
}

// DecideFame runs virtual voting to completion against the current state
// of wt, recording every new verdict in ft and every intermediate vote in
// vt. It is safe to call repeatedly as more witnesses arrive — it only
// ever adds to ft and vt, never revisits a decided witness.
func DecideFame(g *graph.Graph, wt *WitnessTable, ft *FameTable, vt *VoteTable, coinPeriod int, onDecide func(hash string, famous bool)) error {
	n := g.N()
	maxRound := wt.MaxRound()

	for r := 1; r < maxRound; r++ {
		for _, x := range wt.Witnesses(r) {
			if _, decided := ft.Get(x.Hash); decided {
				continue
			}

			for rPrime := r + 1; rPrime <= maxRound; rPrime++ {
				d := rPrime - r
				decidedNow := false

				for _, y := range wt.Witnesses(rPrime) {
					vote, decide := computeVote(g, wt, vt, x.Hash, y.Hash, rPrime, d, n, coinPeriod)
					vt.Set(y.Hash, x.Hash, vote)
					if decide {
						if err := ft.Set(x.Hash, vote); err != nil {
							return err
						}
						if onDecide != nil {
							onDecide(x.Hash, vote)
						}
						decidedNow = true
						break
					}
				}

				if decidedNow {
					break
				}
			}
		}
	}
	return nil
}

// computeVote applies the per-voter rule for one (voter y, target x)
// pair, given d = round(y) - round(x). rPrime is y's round, used to
// gather the round-(rPrime-1) witnesses y strongly-sees when d >= 2.
func computeVote(g *graph.Graph, wt *WitnessTable, vt *VoteTable, x, y string, rPrime, d, n, coinPeriod int) (vote bool, decided bool) {
	if d == 1 {
		return g.IsAncestor(x, y), false
	}

	var trueCount, falseCount int
	for _, w := range wt.Witnesses(rPrime - 1) {
		if !g.StronglySees(y, w.Hash) {
			continue
		}
		v, ok := vt.Get(w.Hash, x)
		if !ok {
			continue
		}
		if v {
			trueCount++
		} else {
			falseCount++
		}
	}

	majority := trueCount >= falseCount
	tally := trueCount
	if falseCount > trueCount {
		tally = falseCount
	}
	threshold := float64(2*n) / 3.0

	isCoin := coinPeriod > 0 && d%coinPeriod == 0 && d >= coinPeriod

	if float64(tally) > threshold {
		return majority, true
	}
	if isCoin {
		yEvent, ok := g.Get(y)
		if !ok {
			return majority, false
		}
		return coinBit(yEvent.Signature), false
	}
	return majority, false
}
