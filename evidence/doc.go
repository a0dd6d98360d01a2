// Package evidence records dedup-key collisions between ledger entries.
//
// Every entry carries the prevTS its client had observed, and replicas use
// it as the index key when merging gossip. Two entries with the same prevTS
// but different content are a collision:
//
//   - shared-context: two requests issued from one causal context (two
//     clients restored from the same TS, or one client retrying a changed
//     request) and stamped with different TS. Both stay in the ledger.
//   - conflict: same prevTS and same TS but different content. Two
//     replicas cannot legitimately produce this, so the incoming entry is
//     dropped.
//
// The pool is bounded by Config.MaxEntries with oldest-first eviction and
// can drop entries older than Config.MaxAge. Pairs are keyed by a SHA3
// digest of both encodings, so the same collision seen on every gossip
// round, or in either order, is recorded once.
//
// # Thread Safety
//
// Pool uses internal locking and may be shared between the replica state
// machine and the admin API.
package evidence
