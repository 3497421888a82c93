package index_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/hashgraph/crypto"
	"github.com/tolelom/hashgraph/event"
	"github.com/tolelom/hashgraph/events"
	"github.com/tolelom/hashgraph/index"
	"github.com/tolelom/hashgraph/internal/testutil"
)

func TestIndexRecordsFinalityOnOrderAppended(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()

	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	tx := []byte("submit-this")
	ge, err := event.Create(priv, [][]byte{tx}, event.GenesisParents())
	require.NoError(t, err)

	lookup := func(hash string) (*event.Event, bool) {
		if hash == ge.Hash {
			return ge, true
		}
		return nil, false
	}
	received := func(hash string) (int, int64, bool) {
		return 3, 1234, true
	}
	ix := index.New(db, emitter, lookup, received)

	emitter.Emit(events.Event{Type: events.EventOrderAppended, Hash: ge.Hash})

	rec, found, err := ix.GetByTxID(crypto.Hash(tx))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 3, rec.ReceivedRound)
	require.Equal(t, int64(1234), rec.ReceivedTime)
	require.Equal(t, ge.Hash, rec.EventHash)
}
