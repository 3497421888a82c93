package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/tolelom/hashgraph/gossip"
)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// SyncHandler processes an incoming gossip envelope. It is normally
// consensus.Engine.Pull.
type SyncHandler func(gossip.Envelope) error

// Node listens for incoming peers and manages outgoing connections. It
// implements consensus.Transport.
type Node struct {
	nodeID      string
	listenAddr  string
	tlsConfig   *tls.Config // nil -> plain TCP
	maxPeers    int
	syncHandler SyncHandler

	mu    sync.RWMutex
	peers map[string]*Peer // keyed by peer public key, once known

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr.
// If tlsCfg is non-nil the listener and outgoing connections use TLS.
func NewNode(nodeID, listenAddr string, tlsCfg *tls.Config, handler SyncHandler) *Node {
	return &Node{
		nodeID:      nodeID,
		listenAddr:  listenAddr,
		tlsConfig:   tlsCfg,
		maxPeers:    DefaultMaxPeers,
		syncHandler: handler,
		peers:       make(map[string]*Peer),
		stopCh:      make(chan struct{}),
	}
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr, registers the peer under pubkey, and says hello.
func (n *Node) AddPeer(pubkey, addr string) error {
	peer, err := Connect(pubkey, addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[pubkey] = peer
	n.mu.Unlock()
	go n.readLoop(peer)

	hello, err := json.Marshal(map[string]string{"pubkey": n.nodeID})
	if err != nil {
		return fmt.Errorf("network: marshal hello: %w", err)
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		log.Printf("[network] send hello to %s: %v", pubkey, err)
	}
	return nil
}

// Peers implements consensus.Transport.
func (n *Node) Peers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.peers))
	for id := range n.peers {
		out = append(out, id)
	}
	return out
}

// Send implements consensus.Transport: delivers env to peerPubKey.
func (n *Node) Send(peerPubKey string, env gossip.Envelope) error {
	n.mu.RLock()
	peer, ok := n.peers[peerPubKey]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("network: unknown peer %s", peerPubKey)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("network: marshal envelope: %w", err)
	}
	return peer.Send(Message{Type: MsgSync, Payload: data})
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[network] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			log.Printf("[network] max peers (%d) reached, rejecting %s", n.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		placeholder := conn.RemoteAddr().String()
		peer := NewPeer(placeholder, placeholder, conn)
		n.mu.Lock()
		n.peers[placeholder] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[network] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		switch msg.Type {
		case MsgHello:
			n.handleHello(peer, msg)
		case MsgSync:
			n.handleSync(peer, msg)
		}
	}
}

func (n *Node) handleHello(peer *Peer, msg Message) {
	var body struct {
		PubKey string `json:"pubkey"`
	}
	if err := json.Unmarshal(msg.Payload, &body); err != nil {
		log.Printf("[network] unmarshal hello: %v", err)
		return
	}
	n.mu.Lock()
	delete(n.peers, peer.ID)
	peer.Rekey(body.PubKey)
	n.peers[body.PubKey] = peer
	n.mu.Unlock()
}

func (n *Node) handleSync(_ *Peer, msg Message) {
	var env gossip.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		log.Printf("[network] unmarshal sync envelope: %v", err)
		return
	}
	if n.syncHandler == nil {
		return
	}
	if err := n.syncHandler(env); err != nil {
		log.Printf("[network] sync handler: %v", err)
	}
}
