package testutil

import (
	"fmt"
	"sync"

	"github.com/tolelom/hashgraph/gossip"
)

// PullFunc is the receiving half of gossip, normally consensus.Engine.Pull.
type PullFunc func(gossip.Envelope) error

// Router is a deterministic in-memory message router standing in for
// network.Node in tests: every Send call is delivered synchronously, on
// the caller's goroutine, so test traces stay reproducible.
type Router struct {
	mu    sync.RWMutex
	nodes map[string]PullFunc
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{nodes: make(map[string]PullFunc)}
}

// Register adds a node's pull handler under its public key.
func (r *Router) Register(pubKey string, pull PullFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[pubKey] = pull
}

// Transport returns a consensus.Transport view of the router for self,
// excluding self from its own peer list.
func (r *Router) Transport(self string) *Transport {
	return &Transport{router: r, self: self}
}

// Transport implements consensus.Transport against a shared Router.
type Transport struct {
	router *Router
	self   string
}

// Peers lists every registered node except self.
func (t *Transport) Peers() []string {
	t.router.mu.RLock()
	defer t.router.mu.RUnlock()
	out := make([]string, 0, len(t.router.nodes))
	for id := range t.router.nodes {
		if id != t.self {
			out = append(out, id)
		}
	}
	return out
}

// Send delivers env to peerPubKey's registered pull handler.
func (t *Transport) Send(peerPubKey string, env gossip.Envelope) error {
	t.router.mu.RLock()
	pull, ok := t.router.nodes[peerPubKey]
	t.router.mu.RUnlock()
	if !ok {
		return fmt.Errorf("testutil: unknown peer %s", peerPubKey)
	}
	return pull(env)
}
