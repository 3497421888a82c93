package config

import (
	"fmt"

	"github.com/tolelom/hashgraph/crypto"
	"github.com/tolelom/hashgraph/event"
)

// CreateGenesisEvent builds and signs the local node's genesis event: no
// parents, no transactions. Exactly one genesis event exists per creator.
// It does not touch any store — the caller inserts it via
// consensus.Engine.Bootstrap.
func CreateGenesisEvent(priv crypto.PrivateKey) (*event.Event, error) {
	ge, err := event.Create(priv, nil, event.GenesisParents())
	if err != nil {
		return nil, fmt.Errorf("config: create genesis event: %w", err)
	}
	return ge, nil
}
