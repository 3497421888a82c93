package consensus

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/hashgraph/graph"
)

// OrderState is the append-only consensus order: a sequence of event
// hashes that, once written, is never reordered. Find-order is built
// from the published Hashgraph consensus algorithm rather than adapted
// from any prior ordering code, since nothing upstream of this tree
// maintains a derived total order over a DAG.
type OrderState struct {
	mu      sync.RWMutex
	order   []string
	ordered map[string]bool
}

func NewOrderState() *OrderState {
	return &OrderState{ordered: make(map[string]bool)}
}

// Ordered reports whether hash already has a position in the consensus order.
func (o *OrderState) Ordered(hash string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ordered[hash]
}

// Order returns a snapshot of the consensus order so far.
func (o *OrderState) Order() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Len returns the number of hashes appended so far.
func (o *OrderState) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.order)
}

// append extends the order with hashes already sorted by the caller. It
// never touches an existing prefix.
func (o *OrderState) append(hashes []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, h := range hashes {
		if o.ordered[h] {
			continue
		}
		o.ordered[h] = true
		o.order = append(o.order, h)
	}
}

// readyEvent holds the computed ordering key for one not-yet-ordered event.
type readyEvent struct {
	hash          string
	receivedRound int
	receivedTime  int64
	tieBreak      []byte
}

// FindOrder computes received round/time for every candidate not already
// in os, appends the ones that are determinable (every famous witness of
// their received round known), sorted by (received round, received time,
// whitened-signature tie-break), and leaves the rest for a later call once
// more rounds are decided.
func FindOrder(g *graph.Graph, rt *RoundTable, wt *WitnessTable, ft *FameTable, os *OrderState, candidates []string) error {
	var ready []readyEvent

	for _, hash := range candidates {
		if os.Ordered(hash) {
			continue
		}
		re, t, tie, ok, err := computeReceived(g, rt, wt, ft, hash)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		ready = append(ready, readyEvent{hash: hash, receivedRound: re, receivedTime: t, tieBreak: tie})
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if a.receivedRound != b.receivedRound {
			return a.receivedRound < b.receivedRound
		}
		if a.receivedTime != b.receivedTime {
			return a.receivedTime < b.receivedTime
		}
		return bytes.Compare(a.tieBreak, b.tieBreak) < 0
	})

	hashes := make([]string, len(ready))
	for i, r := range ready {
		hashes[i] = r.hash
	}
	os.append(hashes)
	return nil
}

// ReceivedRoundTime recomputes the received round and received time for an
// already-ordered (or orderable) event, for callers that only need the
// two numbers, such as the secondary index.
func ReceivedRoundTime(g *graph.Graph, rt *RoundTable, wt *WitnessTable, ft *FameTable, hash string) (round int, receivedTime int64, ok bool) {
	round, receivedTime, _, ok, err := computeReceived(g, rt, wt, ft, hash)
	if err != nil {
		return 0, 0, false
	}
	return round, receivedTime, ok
}

// computeReceived finds the received round, received time, and tie-break
// key for a single event. ok is false when the event's received round
// cannot yet be determined —
// the caller should retry later once more witnesses' fame is decided.
func computeReceived(g *graph.Graph, rt *RoundTable, wt *WitnessTable, ft *FameTable, hash string) (receivedRound int, receivedTime int64, tieBreak []byte, ok bool, err error) {
	startRound, assigned := rt.Get(hash)
	if !assigned {
		return 0, 0, nil, false, nil
	}

	for rstar := startRound; rstar <= wt.MaxRound(); rstar++ {
		witnesses := wt.Witnesses(rstar)

		allDecided := true
		var famous []WitnessEntry
		for _, w := range witnesses {
			verdict, decided := ft.Get(w.Hash)
			if !decided {
				allDecided = false
				break
			}
			if verdict {
				famous = append(famous, w)
			}
		}
		if !allDecided {
			return 0, 0, nil, false, nil
		}

		allDescendant := true
		for _, w := range famous {
			if !g.Sees(w.Hash, hash) {
				allDescendant = false
				break
			}
		}
		if !allDescendant {
			continue
		}

		var times []int64
		var sigs []string
		for _, w := range famous {
			wEvent, found := g.Get(w.Hash)
			if !found {
				continue
			}
			sigs = append(sigs, wEvent.Signature)
			firstSaw, found := firstSelfDescendantSeeing(g, w.Creator, hash)
			if !found {
				continue
			}
			if firstSawEvent, ok := g.Get(firstSaw); ok {
				times = append(times, firstSawEvent.Body.Timestamp)
			}
		}

		eEvent, found := g.Get(hash)
		if !found {
			return 0, 0, nil, false, fmt.Errorf("consensus: find-order: unknown event %s", hash)
		}
		tie, werr := whitenedSignature(eEvent.Signature, sigs)
		if werr != nil {
			return 0, 0, nil, false, werr
		}

		return rstar, medianInt64(times), tie, true, nil
	}

	return 0, 0, nil, false, nil
}

// firstSelfDescendantSeeing returns the earliest event on creator's
// self-parent chain that is a descendant of e (i.e. e is its ancestor) —
// the "first saw" event used for received-time computation.
func firstSelfDescendantSeeing(g *graph.Graph, creator, e string) (string, bool) {
	for _, h := range g.SelfChain(creator) {
		if g.IsAncestor(e, h) {
			return h, true
		}
	}
	return "", false
}

// whitenedSignature XORs eSigHex byte-for-byte with every signature in
// famousSigsHex, producing the tie-break key for events sharing a
// received round and received time.
func whitenedSignature(eSigHex string, famousSigsHex []string) ([]byte, error) {
	acc, err := hex.DecodeString(eSigHex)
	if err != nil {
		return nil, fmt.Errorf("consensus: decode event signature: %w", err)
	}
	out := make([]byte, len(acc))
	copy(out, acc)
	for _, fHex := range famousSigsHex {
		fb, err := hex.DecodeString(fHex)
		if err != nil {
			return nil, fmt.Errorf("consensus: decode witness signature: %w", err)
		}
		for i := range out {
			if i < len(fb) {
				out[i] ^= fb[i]
			}
		}
	}
	return out, nil
}

func medianInt64(vals []int64) int64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]int64, len(vals))
	copy(sorted, vals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
