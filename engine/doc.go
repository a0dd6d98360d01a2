// Package engine implements a replica of the gossip-replicated ledger.
//
// Each replica accepts client operations locally, stamps them with a vector
// clock and exchanges its whole ledger with the other replicas in the
// background. Entries are applied to balances once they are stable, that
// is once everything their issuing client had observed has been applied
// here. A reader that presents its causal context blocks until the replica
// has caught up with it.
//
// # Core Components
//
// ReplicaState: the state machine. One mutex guards the ledger, valueTS,
// replicaTS and the activation flag. CreateAccount and TransferTo validate
// against local balances, stamp the entry with the next counter of this
// replica's slot and apply it immediately when stable. Update merges a
// peer's ledger, deduplicating by prevTS, and runs the stabilization loop.
//
// Ledger: the entry store with its executed set, balances and index by
// dedup key.
//
// Engine: owns a ReplicaState, the WAL, the collision pool and the gossip
// loop. Gossip resolves every other replica through a Directory and pushes
// over a Transport.
//
// GossipTicker: fires periodic gossip rounds.
//
// PeerState: tracks what each peer last acknowledged so unchanged state
// is not pushed again.
//
// Replay: crash recovery from the write-ahead log. Records re-enter the
// same code paths as live traffic without being logged again.
//
// # Apply order
//
// Each stabilization pass collects the stable unapplied entries and applies
// them in types.CausalCompare order. Transfers wait until both accounts
// exist. Remote transfers are applied without a funds check, so a balance
// can go negative when two replicas accept concurrent withdrawals.
//
// # Usage Example
//
//	cfg := engine.DefaultConfig()
//	cfg.Qualifier = "B"
//
//	w, _ := wal.NewFileWAL(cfg.WALPath)
//	eng, err := engine.NewEngine(cfg, w, rpc.NewClient(), naming.NewClient(namingAddr))
//	if err != nil {
//	    return err
//	}
//	if err := eng.Start(); err != nil {
//	    return err
//	}
//	defer eng.Stop()
//
//	ts, err := eng.CreateAccount("alice", nil)
//	valueTS, balance, err := eng.Balance(ctx, "alice", ts)
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Balance releases the
// state lock while it waits and re-checks after every wake-up; wake-ups
// come from Update and Gossip.
package engine
