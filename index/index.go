// Package index maintains a secondary lookup table from transaction id
// to its consensus finality, answering "has my transaction been
// finalized" without replaying consensus.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tolelom/hashgraph/crypto"
	"github.com/tolelom/hashgraph/event"
	"github.com/tolelom/hashgraph/events"
	"github.com/tolelom/hashgraph/storage"
)

const prefixTx = "idx:tx:"

// Record is what a client learns once a transaction is finalized.
type Record struct {
	EventHash         string `json:"event_hash"`
	ConsensusPosition int    `json:"consensus_position"`
	ReceivedRound     int    `json:"received_round"`
	ReceivedTime      int64  `json:"received_time"`
}

// EventLookup resolves an event hash to the event, for reading out the
// transactions it carried.
type EventLookup func(hash string) (*event.Event, bool)

// ReceivedLookup resolves an already-ordered event's received round/time.
type ReceivedLookup func(hash string) (round int, receivedTime int64, ok bool)

// Index subscribes to events.EventOrderAppended and records, for every
// transaction carried by the newly-ordered event, its position in the
// consensus order and received round/time.
type Index struct {
	db       storage.DB
	lookup   EventLookup
	received ReceivedLookup
	position int
}

// New creates an Index backed by db and subscribes it to emitter.
func New(db storage.DB, emitter *events.Emitter, lookup EventLookup, received ReceivedLookup) *Index {
	ix := &Index{db: db, lookup: lookup, received: received}
	emitter.Subscribe(events.EventOrderAppended, ix.onOrderAppended)
	return ix
}

// GetByTxID returns the finality record for a transaction, if known.
func (ix *Index) GetByTxID(txID string) (Record, bool, error) {
	data, err := ix.db.Get([]byte(prefixTx + txID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, false, fmt.Errorf("index: unmarshal record: %w", err)
	}
	return r, true, nil
}

func (ix *Index) onOrderAppended(ev events.Event) {
	e, ok := ix.lookup(ev.Hash)
	if !ok {
		return
	}
	round, receivedTime, _ := ix.received(ev.Hash)
	pos := ix.position
	ix.position++

	for _, tx := range e.Body.Transactions {
		txID := crypto.Hash(tx)
		rec := Record{EventHash: ev.Hash, ConsensusPosition: pos, ReceivedRound: round, ReceivedTime: receivedTime}
		data, err := json.Marshal(rec)
		if err != nil {
			log.Printf("[index] marshal record for tx %s: %v", txID, err)
			continue
		}
		if err := ix.db.Set([]byte(prefixTx+txID), data); err != nil {
			log.Printf("[index] write record for tx %s: %v", txID, err)
		}
	}
}
