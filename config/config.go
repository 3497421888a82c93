// Package config holds process-wide, node-local configuration: the
// participant set, coin-round period, ports, data directory, and optional
// mTLS material.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	PubKey string `json:"pubkey"` // hex ed25519 public key
	Addr   string `json:"addr"`   // host:port
}

// Config holds all node configuration. The participant set is fixed for
// the process lifetime; membership changes are not supported.
type Config struct {
	NodeID  string `json:"node_id"`
	DataDir string `json:"data_dir"`
	RPCPort int    `json:"rpc_port"`
	P2PPort int    `json:"p2p_port"`

	CoinPeriod int `json:"coin_period"` // C; 0 -> DefaultCoinPeriod
	PushIntervalMillis int `json:"push_interval_millis"` // 0 -> 500ms

	Participants []string   `json:"participants"` // every node's hex ed25519 pubkey; len = N
	SeedPeers    []SeedPeer `json:"seed_peers,omitempty"`

	TLS          *TLSConfig `json:"tls,omitempty"`
	RPCAuthToken string     `json:"rpc_auth_token,omitempty"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:             "node0",
		DataDir:            "./data",
		RPCPort:            8545,
		P2PPort:            30303,
		CoinPeriod:         10,
		PushIntervalMillis: 500,
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// N returns the fixed participant count.
func (c *Config) N() int {
	return len(c.Participants)
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if len(c.Participants) < 4 {
		return fmt.Errorf("participants must list at least 4 nodes for Byzantine fault tolerance, got %d", len(c.Participants))
	}
	for i, p := range c.Participants {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("participants[%d]: must be 64-char hex (32-byte ed25519 pubkey), got %q", i, p)
		}
	}
	if c.CoinPeriod < 0 {
		return fmt.Errorf("coin_period must be >= 0, got %d", c.CoinPeriod)
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
