package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tolelom/hashgraph/event"
)

// GraphStore persists the hashgraph DAG and its derived tables under a
// fixed key scheme: event:<hash>, round:<hash>, witness:<round>:<creator>,
// fame:<hash>, order:<index>.
type GraphStore struct {
	db DB
}

func NewGraphStore(db DB) *GraphStore {
	return &GraphStore{db: db}
}

func eventKey(hash string) []byte    { return []byte("event:" + hash) }
func roundKey(hash string) []byte    { return []byte("round:" + hash) }
func witnessKey(round int, creator string) []byte {
	return []byte(fmt.Sprintf("witness:%d:%s", round, creator))
}
func fameKey(hash string) []byte     { return []byte("fame:" + hash) }
func orderKey(index int) []byte      { return []byte(fmt.Sprintf("order:%010d", index)) }

// PutEvent persists a single event.
func (s *GraphStore) PutEvent(e *event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("storage: marshal event: %w", err)
	}
	return s.db.Set(eventKey(e.Hash), data)
}

// GetEvent loads a single event by hash.
func (s *GraphStore) GetEvent(hash string) (*event.Event, error) {
	data, err := s.db.Get(eventKey(hash))
	if err != nil {
		return nil, err
	}
	var e event.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("storage: unmarshal event: %w", err)
	}
	return &e, nil
}

// LoadAllEvents returns every persisted event, for replaying into a fresh
// graph.Graph at startup.
func (s *GraphStore) LoadAllEvents() ([]*event.Event, error) {
	it := s.db.NewIterator([]byte("event:"))
	defer it.Release()
	var out []*event.Event
	for it.Next() {
		var e event.Event
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, fmt.Errorf("storage: unmarshal event: %w", err)
		}
		out = append(out, &e)
	}
	return out, it.Error()
}

// PutRound persists a round assignment.
func (s *GraphStore) PutRound(hash string, round int) error {
	return s.db.Set(roundKey(hash), []byte(strconv.Itoa(round)))
}

// LoadAllRounds returns every persisted round assignment.
func (s *GraphStore) LoadAllRounds() (map[string]int, error) {
	it := s.db.NewIterator([]byte("round:"))
	defer it.Release()
	out := make(map[string]int)
	for it.Next() {
		hash := strings.TrimPrefix(string(it.Key()), "round:")
		round, err := strconv.Atoi(string(it.Value()))
		if err != nil {
			return nil, fmt.Errorf("storage: parse round for %s: %w", hash, err)
		}
		out[hash] = round
	}
	return out, it.Error()
}

// PutWitness persists a witness-table slot.
func (s *GraphStore) PutWitness(round int, creator, hash string) error {
	return s.db.Set(witnessKey(round, creator), []byte(hash))
}

// LoadAllWitnesses returns round -> creator -> hash.
func (s *GraphStore) LoadAllWitnesses() (map[int]map[string]string, error) {
	it := s.db.NewIterator([]byte("witness:"))
	defer it.Release()
	out := make(map[int]map[string]string)
	for it.Next() {
		parts := strings.SplitN(strings.TrimPrefix(string(it.Key()), "witness:"), ":", 2)
		if len(parts) != 2 {
			continue
		}
		round, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("storage: parse witness round: %w", err)
		}
		if out[round] == nil {
			out[round] = make(map[string]string)
		}
		out[round][parts[1]] = string(it.Value())
	}
	return out, it.Error()
}

// PutFame persists a fame verdict.
func (s *GraphStore) PutFame(hash string, famous bool) error {
	v := []byte("0")
	if famous {
		v = []byte("1")
	}
	return s.db.Set(fameKey(hash), v)
}

// LoadAllFame returns every persisted fame verdict.
func (s *GraphStore) LoadAllFame() (map[string]bool, error) {
	it := s.db.NewIterator([]byte("fame:"))
	defer it.Release()
	out := make(map[string]bool)
	for it.Next() {
		hash := strings.TrimPrefix(string(it.Key()), "fame:")
		out[hash] = string(it.Value()) == "1"
	}
	return out, it.Error()
}

// AppendOrder persists the consensus order entry at index.
func (s *GraphStore) AppendOrder(index int, hash string) error {
	return s.db.Set(orderKey(index), []byte(hash))
}

// LoadOrder returns the full consensus order, in index order (the key
// scheme's zero-padded decimal index sorts lexicographically the same as
// numerically).
func (s *GraphStore) LoadOrder() ([]string, error) {
	it := s.db.NewIterator([]byte("order:"))
	defer it.Release()
	var out []string
	for it.Next() {
		out = append(out, string(it.Value()))
	}
	return out, it.Error()
}

// MergeResult bundles everything one gossip-merge pipeline run touched, so
// it can be committed to storage as a single atomic batch, carrying the
// in-memory engine's all-or-nothing merge guarantee onto disk.
type MergeResult struct {
	Events      []*event.Event
	Rounds      map[string]int
	Witnesses   []WitnessRecord
	Fame        map[string]bool
	OrderAppend []string // hashes newly appended, in order
	OrderStart  int      // index of the first entry in OrderAppend
}

// WitnessRecord names one (round, creator, hash) witness-table slot.
type WitnessRecord struct {
	Round   int
	Creator string
	Hash    string
}

// PersistMerge writes a MergeResult as a single atomic batch.
func (s *GraphStore) PersistMerge(r MergeResult) error {
	batch := s.db.NewBatch()

	for _, e := range r.Events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("storage: marshal event: %w", err)
		}
		batch.Set(eventKey(e.Hash), data)
	}
	for hash, round := range r.Rounds {
		batch.Set(roundKey(hash), []byte(strconv.Itoa(round)))
	}
	for _, w := range r.Witnesses {
		batch.Set(witnessKey(w.Round, w.Creator), []byte(w.Hash))
	}
	for hash, famous := range r.Fame {
		v := []byte("0")
		if famous {
			v = []byte("1")
		}
		batch.Set(fameKey(hash), v)
	}
	for i, hash := range r.OrderAppend {
		batch.Set(orderKey(r.OrderStart+i), []byte(hash))
	}

	return batch.Write()
}
