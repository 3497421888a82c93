// Command node runs a single hashgraph participant: it gossips events with
// its peers, runs consensus locally, and serves the derived state over
// JSON-RPC.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tolelom/hashgraph/config"
	"github.com/tolelom/hashgraph/consensus"
	"github.com/tolelom/hashgraph/crypto/certgen"
	"github.com/tolelom/hashgraph/events"
	"github.com/tolelom/hashgraph/index"
	"github.com/tolelom/hashgraph/keystore"
	"github.com/tolelom/hashgraph/network"
	"github.com/tolelom/hashgraph/rpc"
	"github.com/tolelom/hashgraph/storage"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "identity.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new node identity and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit (requires node ID from config)")
	flag.Parse()

	// Read keystore password from environment (not CLI flags — they leak via ps).
	password := os.Getenv("HASHGRAPH_PASSWORD")
	if password == "" {
		log.Println("WARNING: HASHGRAPH_PASSWORD not set — keystore will use an empty password")
	}

	if *genKey {
		id, err := keystore.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := keystore.SaveKey(*keyPath, password, id.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated identity. Public key: %s\n", id.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	if *genCerts != "" {
		cfgForCerts, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if err := certgen.GenerateAll(*genCerts, cfgForCerts.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfgForCerts.NodeID)
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	privKey, err := keystore.LoadKey(*keyPath, password)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/graph")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	graphStore := storage.NewGraphStore(db)

	emitter := events.NewEmitter()
	coinPeriod := cfg.CoinPeriod
	if coinPeriod == 0 {
		coinPeriod = consensus.DefaultCoinPeriod
	}
	// Per-process randomness is fine here: only RunPushLoop's peer
	// selection uses it, which is not part of consensus-critical state.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	engine := consensus.New(cfg.N(), coinPeriod, privKey, emitter, rng)
	engine.AttachStore(graphStore)

	idx := index.New(db, emitter, engine.Graph().Get, func(hash string) (int, int64, bool) {
		return consensus.ReceivedRoundTime(engine.Graph(), engine.RoundTable(), engine.WitnessTable(), engine.FameTable(), hash)
	})

	restored, err := replay(engine, graphStore)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	if restored == 0 {
		if _, err := engine.Bootstrap(); err != nil {
			log.Fatalf("bootstrap: %v", err)
		}
		log.Printf("Bootstrapped genesis event for %s", engine.PublicKey())
	} else {
		log.Printf("Replayed %d persisted events", restored)
	}

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for P2P")
	}

	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(engine.PublicKey(), p2pAddr, tlsCfg, engine.Pull)
	if err := node.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	defer node.Stop()
	log.Printf("P2P listening on %s", p2pAddr)

	for _, sp := range cfg.SeedPeers {
		if err := node.AddPeer(sp.PubKey, sp.Addr); err != nil {
			log.Printf("seed peer %s (%s): %v", sp.PubKey, sp.Addr, err)
			continue
		}
		log.Printf("Connected to seed peer %s (%s)", sp.PubKey, sp.Addr)
	}

	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(engine, idx)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	pushInterval := time.Duration(cfg.PushIntervalMillis) * time.Millisecond
	if pushInterval <= 0 {
		pushInterval = 500 * time.Millisecond
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.RunPushLoop(node, pushInterval, done)
	}()
	log.Printf("Gossip push loop running every %s (node: %s)", pushInterval, engine.PublicKey())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// 1. Stop the push loop first (no new gossip sent).
	close(done)
	wg.Wait()

	// 2. Deferred calls run in LIFO: rpcServer.Stop -> node.Stop -> db.Close
	log.Println("Shutdown complete.")
}

// replay reloads persisted graph state from store into engine, returning
// the number of events restored (0 on a fresh data directory).
func replay(engine *consensus.Engine, store *storage.GraphStore) (int, error) {
	evs, err := store.LoadAllEvents()
	if err != nil {
		return 0, fmt.Errorf("load events: %w", err)
	}
	if len(evs) == 0 {
		return 0, nil
	}
	rounds, err := store.LoadAllRounds()
	if err != nil {
		return 0, fmt.Errorf("load rounds: %w", err)
	}
	witnesses, err := store.LoadAllWitnesses()
	if err != nil {
		return 0, fmt.Errorf("load witnesses: %w", err)
	}
	fame, err := store.LoadAllFame()
	if err != nil {
		return 0, fmt.Errorf("load fame: %w", err)
	}
	order, err := store.LoadOrder()
	if err != nil {
		return 0, fmt.Errorf("load order: %w", err)
	}
	if err := engine.Restore(evs, rounds, witnesses, fame, order); err != nil {
		return 0, err
	}
	return len(evs), nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
