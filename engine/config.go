package engine

import (
	"fmt"
	"time"

	"github.com/blockberries/distledger/types"
)

// Config holds configuration for a ledger replica
type Config struct {
	// Qualifier identifies this replica within Replicas ("A", "B", ...)
	Qualifier string

	// Replicas fixes the clock slot of every replica
	Replicas *types.ReplicaSet

	// ServiceName is the directory service name replicas register under
	ServiceName string

	// Broker account and its initial balance
	BrokerAccount string
	BrokerBalance int64

	// GossipInterval is the period of automatic gossip; 0 disables the timer
	GossipInterval time.Duration

	// WAL configuration
	WALPath string
	WALSync bool // Force sync on every write
}

// DefaultConfig returns a default configuration for replica A
func DefaultConfig() *Config {
	return &Config{
		Qualifier:      "A",
		Replicas:       types.DefaultReplicaSet(),
		ServiceName:    "DistLedger",
		BrokerAccount:  types.DefaultBrokerAccount,
		BrokerBalance:  1000,
		GossipInterval: 5 * time.Second,
		WALPath:        "data/ledger.wal",
		WALSync:        true,
	}
}

// ValidateBasic performs basic validation of the config
func (cfg *Config) ValidateBasic() error {
	if cfg.Replicas == nil || cfg.Replicas.Len() == 0 {
		return fmt.Errorf("%w: empty replica set", ErrInvalidConfig)
	}
	if !cfg.Replicas.Has(cfg.Qualifier) {
		return fmt.Errorf("%w: qualifier %q not in replica set %s", ErrInvalidConfig, cfg.Qualifier, cfg.Replicas)
	}
	if cfg.ServiceName == "" {
		return fmt.Errorf("%w: empty service name", ErrInvalidConfig)
	}
	if err := types.ValidateAccountID(cfg.BrokerAccount); err != nil {
		return fmt.Errorf("%w: broker account: %v", ErrInvalidConfig, err)
	}
	if cfg.BrokerBalance < 0 {
		return fmt.Errorf("%w: negative broker balance %d", ErrInvalidConfig, cfg.BrokerBalance)
	}
	if cfg.GossipInterval < 0 {
		return fmt.Errorf("%w: negative gossip interval", ErrInvalidConfig)
	}
	return nil
}

// Slot returns the clock slot of this replica
func (cfg *Config) Slot() int {
	idx, _ := cfg.Replicas.IndexOf(cfg.Qualifier)
	return idx
}
