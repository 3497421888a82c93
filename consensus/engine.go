package consensus

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/tolelom/hashgraph/config"
	"github.com/tolelom/hashgraph/crypto"
	"github.com/tolelom/hashgraph/event"
	"github.com/tolelom/hashgraph/events"
	"github.com/tolelom/hashgraph/gossip"
	"github.com/tolelom/hashgraph/graph"
	"github.com/tolelom/hashgraph/storage"
)

// Transport is the abstract peer directory: a node holds a directory of
// creator pubkeys and can send a signed payload to any of them.
// Production code backs this with network.Node; tests back it with a
// deterministic in-memory router.
type Transport interface {
	Peers() []string
	Send(peerPubKey string, env gossip.Envelope) error
}

// Engine is the single-threaded cooperative state machine driving
// consensus: every DAG mutation (add event, assign round, mark witness,
// decide fame, append to order) runs while mu is held, so no two
// mutations interleave.
type Engine struct {
	mu sync.Mutex

	n          int
	coinPeriod int

	priv crypto.PrivateKey
	pub  string

	g  *graph.Graph
	rt *RoundTable
	wt *WitnessTable
	ft *FameTable
	vt *VoteTable
	os *OrderState

	pendingTxs [][]byte

	emitter *events.Emitter
	rng     *rand.Rand

	// store is optional: nil means run in-memory only. When set, Bootstrap
	// and Pull persist everything they touch as a single atomic batch,
	// carrying the in-memory all-or-nothing merge guarantee onto disk too.
	store *storage.GraphStore
}

// AttachStore wires a persistence layer onto an already-constructed
// Engine. Kept separate from New so tests and in-memory-only deployments
// never have to construct a storage.GraphStore they don't want.
func (en *Engine) AttachStore(s *storage.GraphStore) {
	en.mu.Lock()
	defer en.mu.Unlock()
	en.store = s
}

// New creates an Engine for a fixed participant count n, coin-round
// period coinPeriod, local identity priv, event-lifecycle emitter, and an
// injected randomness source, so tests can replay deterministic traces.
func New(n, coinPeriod int, priv crypto.PrivateKey, emitter *events.Emitter, rng *rand.Rand) *Engine {
	return &Engine{
		n:          n,
		coinPeriod: coinPeriod,
		priv:       priv,
		pub:        priv.Public().Hex(),
		g:          graph.New(n),
		rt:         NewRoundTable(),
		wt:         NewWitnessTable(),
		ft:         NewFameTable(),
		vt:         NewVoteTable(),
		os:         NewOrderState(),
		emitter:    emitter,
		rng:        rng,
	}
}

// Graph exposes the underlying DAG for read-only inspection (RPC, storage
// snapshotting).
func (en *Engine) Graph() *graph.Graph { return en.g }

// RoundTable, WitnessTable, FameTable, OrderState expose the derived
// tables for read-only inspection.
func (en *Engine) RoundTable() *RoundTable     { return en.rt }
func (en *Engine) WitnessTable() *WitnessTable { return en.wt }
func (en *Engine) FameTable() *FameTable       { return en.ft }
func (en *Engine) OrderState() *OrderState     { return en.os }

// PublicKey returns this node's hex-encoded identity.
func (en *Engine) PublicKey() string { return en.pub }

// SubmitTransaction queues a transaction to be carried by this node's next
// self-created event (either the bootstrap genesis has none, or the next
// sync event created during Pull).
func (en *Engine) SubmitTransaction(tx []byte) {
	en.mu.Lock()
	defer en.mu.Unlock()
	en.pendingTxs = append(en.pendingTxs, tx)
}

// Restore replays previously-persisted state into a freshly constructed
// Engine at startup. The derived tables are trusted as already
// correct (they were produced by a prior divide-rounds/decide-fame/
// find-order run) and are written back directly instead of recomputed.
func (en *Engine) Restore(evs []*event.Event, rounds map[string]int, witnesses map[int]map[string]string, fame map[string]bool, order []string) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	view := make(map[string]*event.Event, len(evs))
	for _, e := range evs {
		view[e.Hash] = e
	}
	sorted, err := graph.TopologicalSort(view, en.g.Has)
	if err != nil {
		return fmt.Errorf("consensus: restore: %w", err)
	}
	for _, h := range sorted {
		if err := en.g.Add(view[h], h); err != nil && !errors.Is(err, graph.ErrForkDetected) {
			return fmt.Errorf("consensus: restore: add event %s: %w", h, err)
		}
	}

	for h, r := range rounds {
		if err := en.rt.Set(h, r); err != nil {
			return fmt.Errorf("consensus: restore: round for %s: %w", h, err)
		}
	}
	for round, byCreator := range witnesses {
		for creator, hash := range byCreator {
			if err := en.wt.Register(round, creator, hash); err != nil {
				return fmt.Errorf("consensus: restore: witness round %d creator %s: %w", round, creator, err)
			}
		}
	}
	for h, famous := range fame {
		if err := en.ft.Set(h, famous); err != nil {
			return fmt.Errorf("consensus: restore: fame for %s: %w", h, err)
		}
	}
	en.os.append(order)

	return nil
}

// Bootstrap creates this node's genesis event: parents empty, inserted as
// its own round-1 witness.
func (en *Engine) Bootstrap() (*event.Event, error) {
	en.mu.Lock()
	defer en.mu.Unlock()

	ge, err := config.CreateGenesisEvent(en.priv)
	if err != nil {
		return nil, fmt.Errorf("consensus: bootstrap: %w", err)
	}
	if err := en.g.Add(ge, ge.Hash); err != nil {
		return nil, fmt.Errorf("consensus: bootstrap: add genesis: %w", err)
	}
	if errs := DivideRounds(en.g, en.rt, en.wt, []string{ge.Hash}); len(errs) > 0 {
		return nil, fmt.Errorf("consensus: bootstrap: divide-rounds: %v", errs[0])
	}
	en.emit(events.EventEventAdded, ge.Hash, nil)
	en.emit(events.EventWitnessMarked, ge.Hash, nil)

	if en.store != nil {
		round, _ := en.rt.Get(ge.Hash)
		result := storage.MergeResult{
			Events: []*event.Event{ge},
			Rounds: map[string]int{ge.Hash: round},
			Witnesses: []storage.WitnessRecord{
				{Round: round, Creator: ge.Body.Creator, Hash: ge.Hash},
			},
		}
		if err := en.store.PersistMerge(result); err != nil {
			return nil, fmt.Errorf("consensus: bootstrap: persist: %w", err)
		}
	}
	return ge, nil
}

// Push builds this node's current (head, view) and signs it for peer.
// Peer selection policy (uniform at random among peers != self) lives in
// RunPushLoop; Push itself is peer-agnostic.
func (en *Engine) Push() (gossip.Envelope, error) {
	en.mu.Lock()
	defer en.mu.Unlock()

	head, _ := en.g.Head(en.pub)
	payload := gossip.Payload{SenderHead: head, View: en.g.Snapshot()}
	data, err := gossip.Encode(payload)
	if err != nil {
		return gossip.Envelope{}, fmt.Errorf("consensus: push: %w", err)
	}
	return gossip.Seal(en.priv, data), nil
}

// Pull handles an incoming gossip envelope: verify the outer envelope,
// compute the set difference against the local view, topologically sort
// and insert it, create a new sync event, then run divide-rounds,
// decide-fame, and find-order on everything the merge touched.
//
// Partial merges are not observable: a validation failure mid-batch
// discards only the offending event, tolerating a Byzantine peer that
// mixes valid and invalid events in one view; a cycle in the claimed view
// aborts the whole merge before anything is mutated.
func (en *Engine) Pull(env gossip.Envelope) error {
	payloadBytes, err := gossip.Open(env)
	if err != nil {
		return fmt.Errorf("consensus: pull: %w", err)
	}
	payload, err := gossip.Decode(payloadBytes)
	if err != nil {
		return fmt.Errorf("consensus: pull: %w", err)
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	unknown := make(map[string]*event.Event)
	for h, e := range payload.View {
		if !en.g.Has(h) {
			unknown[h] = e
		}
	}

	order, err := graph.TopologicalSort(unknown, en.g.Has)
	if err != nil {
		return fmt.Errorf("consensus: pull: %w", err)
	}

	var touched []string
	for _, h := range order {
		e := unknown[h]
		if err := en.g.Add(e, h); err != nil {
			if errors.Is(err, graph.ErrForkDetected) {
				en.emit(events.EventForkDetected, h, map[string]any{"creator": e.Body.Creator})
				touched = append(touched, h) // still inserted; included in round assignment
				continue
			}
			log.Printf("[consensus] discarding invalid event %s: %v", h, err)
			continue
		}
		en.emit(events.EventEventAdded, h, nil)
		touched = append(touched, h)
	}

	selfHead, ok := en.g.Head(en.pub)
	if !ok {
		return errors.New("consensus: pull: local node has no head; Bootstrap was never called")
	}

	txs := en.pendingTxs
	en.pendingTxs = nil
	syncEvent, err := event.Create(en.priv, txs, event.RegularParents(selfHead, payload.SenderHead))
	if err != nil {
		return fmt.Errorf("consensus: pull: create sync event: %w", err)
	}
	if err := en.g.Add(syncEvent, syncEvent.Hash); err != nil {
		return fmt.Errorf("consensus: pull: add sync event: %w", err)
	}
	en.emit(events.EventEventAdded, syncEvent.Hash, nil)
	touched = append(touched, syncEvent.Hash)

	if errs := DivideRounds(en.g, en.rt, en.wt, touched); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("[consensus] divide-rounds: %v", e)
		}
	}
	touchedRounds := make(map[string]int)
	var touchedWitnesses []storage.WitnessRecord
	for _, h := range touched {
		if r, ok := en.rt.Get(h); ok {
			touchedRounds[h] = r
			if ev, ok := en.g.Get(h); ok {
				if ev.IsGenesis() || isRegisteredWitness(en.wt, r, ev.Body.Creator, h) {
					en.emit(events.EventWitnessMarked, h, map[string]any{"round": r})
					touchedWitnesses = append(touchedWitnesses, storage.WitnessRecord{Round: r, Creator: ev.Body.Creator, Hash: h})
					if !ev.IsGenesis() {
						en.emit(events.EventRoundAdvanced, h, map[string]any{"round": r})
					}
				}
			}
		}
	}

	decidedFame := make(map[string]bool)
	onFame := func(hash string, famous bool) {
		decidedFame[hash] = famous
		en.emit(events.EventWitnessFamous, hash, map[string]any{"famous": famous})
	}
	if err := DecideFame(en.g, en.wt, en.ft, en.vt, en.coinPeriod, onFame); err != nil {
		return fmt.Errorf("consensus: pull: decide-fame: %w", err)
	}

	snapshot := en.g.Snapshot()
	candidates := make([]string, 0, len(snapshot))
	for h := range snapshot {
		if !en.os.Ordered(h) {
			candidates = append(candidates, h)
		}
	}
	before := en.os.Len()
	if err := FindOrder(en.g, en.rt, en.wt, en.ft, en.os, candidates); err != nil {
		return fmt.Errorf("consensus: pull: find-order: %w", err)
	}
	var appended []string
	if en.os.Len() > before {
		appended = en.os.Order()[before:]
		for _, h := range appended {
			en.emit(events.EventOrderAppended, h, nil)
		}
	}

	if en.store != nil {
		touchedEvents := make([]*event.Event, 0, len(touched))
		for _, h := range touched {
			if ev, ok := en.g.Get(h); ok {
				touchedEvents = append(touchedEvents, ev)
			}
		}
		result := storage.MergeResult{
			Events:      touchedEvents,
			Rounds:      touchedRounds,
			Witnesses:   touchedWitnesses,
			Fame:        decidedFame,
			OrderAppend: appended,
			OrderStart:  before,
		}
		if err := en.store.PersistMerge(result); err != nil {
			return fmt.Errorf("consensus: pull: persist: %w", err)
		}
	}

	return nil
}

func isRegisteredWitness(wt *WitnessTable, round int, creator, hash string) bool {
	for _, w := range wt.Witnesses(round) {
		if w.Creator == creator && w.Hash == hash {
			return true
		}
	}
	return false
}

func (en *Engine) emit(typ events.EventType, hash string, data map[string]any) {
	if en.emitter == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["hash"] = hash
	en.emitter.Emit(events.Event{Type: typ, Hash: hash, Data: data})
}

// RunPushLoop drives the outgoing half of gossip: every interval, pick a
// peer uniformly at random (via the injected rng) and push to it. It
// blocks until done is closed.
func (en *Engine) RunPushLoop(transport Transport, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			peers := transport.Peers()
			if len(peers) == 0 {
				continue
			}
			peer := peers[en.rng.Intn(len(peers))]
			env, err := en.Push()
			if err != nil {
				log.Printf("[consensus] push error: %v", err)
				continue
			}
			if err := transport.Send(peer, env); err != nil {
				log.Printf("[consensus] send to %s failed: %v", peer, err)
			}
		}
	}
}
