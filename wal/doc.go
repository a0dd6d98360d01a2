// Package wal implements a write-ahead log for replica crash recovery.
//
// Every change that affects replica state is written to the WAL before the
// request that caused it returns: locally accepted operations, ingested
// gossip batches and activation changes. After a restart the engine replays
// the log to rebuild the ledger, the applied set, balances and both clocks.
//
// # Message Types
//
//	- MsgTypeAccept: one stamped entry accepted from a client
//	- MsgTypeMerge: a gossip batch (entries plus the sender's replicaTS)
//	- MsgTypeActivate / MsgTypeDeactivate: operator activation switch
//
// # File Format
//
// Each record is encoded as:
//
//	[4 bytes: CRC32-C of payload, little endian][uvarint: N][N bytes: payload]
//
// where the payload is the protobuf wire encoding of the Message.
// Records are numbered by a sequence that continues across segments and
// restarts. Segments are named wal-00000, wal-00001, ... and rotate once the
// current one exceeds the configured size.
//
// # Recovery Process
//
// On Start the WAL scans back from the newest segment to recover the last
// sequence number. A record cut short by a crash at the tail of the newest
// segment is truncated away; a torn record in an older segment is reported
// as ErrWALCorrupted. OpenWALForReading returns a Reader over all segments in
// order; a torn tail surfaces as io.ErrUnexpectedEOF and a checksum mismatch
// as ErrWALCorrupted.
//
// # Thread Safety
//
// FileWAL uses internal locking to ensure thread-safe writes from multiple
// goroutines. Only one WAL instance should write to a directory.
//
// # Usage Example
//
//	w, err := wal.NewFileWAL("./data/wal")
//	if err != nil {
//	    return err
//	}
//	if err := w.Start(); err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	msg, _ := wal.NewAcceptMessage(op)
//	err = w.WriteSync(msg)
package wal
