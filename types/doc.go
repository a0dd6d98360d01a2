// Package types defines the core data structures of the replicated ledger.
//
// # Core Types
//
// VectorClock: Fixed-size vector of per-replica counters with component-wise
// max merge and the partial order used for causal stability. Slot i belongs
// to the i-th replica of the ReplicaSet.
//
// Operation: One ledger entry, either an account creation or a transfer.
// Every entry carries the clock its client had observed (PrevTS) and, once a
// replica accepts it, the clock that replica assigned (TS).
//
// ReplicaSet: Ordered qualifiers ("A", "B", "C") mapping each replica to its
// clock slot.
//
// # Entry Lifecycle
//
// Entries are built in two phases. NewCreateAccount and NewTransfer return a
// proposed entry with no TS; Stamp returns the accepted entry. Accepted
// entries are shared between goroutines and never mutated, so callers that
// need to change one make a Copy.
//
// # Identity
//
// Two entries with equal PrevTS are the same logical operation. DedupKey
// returns the string form of PrevTS for use as a map key.
//
// # Serialization
//
// Entries encode to protobuf wire format (MarshalBinary) for the write-ahead
// log and to JSON for the HTTP API. LedgerDigest hashes an encoded ledger
// with SHA3-256.
//
// # Usage Example
//
//	rs := types.DefaultReplicaSet()
//	prev := rs.NewClock()
//
//	op := types.NewCreateAccount("alice", prev)
//	slot, _ := rs.IndexOf("A")
//	accepted := op.Stamp(slot, 1) // TS = [1, 0, 0]
//
//	prev.Merge(accepted.TS)
package types
