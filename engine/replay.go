package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/blockberries/distledger/wal"
)

// ReplayResult contains the result of a WAL replay
type ReplayResult struct {
	// Number of records replayed
	MessagesReplayed int
	// Entries re-accepted from local clients
	Accepted int
	// Entries re-merged from gossip
	Merged int
	// Activation flag after the last activation record
	Active bool
	// Last sequence number seen
	LastSeq uint64
	// Whether replay stopped at a torn trailing record
	TornTail bool
}

// ReplayWAL opens the WAL at dir and replays it into rs. A missing WAL is
// an empty history.
func (rs *ReplicaState) ReplayWAL(dir string) (*ReplayResult, error) {
	reader, err := wal.OpenWALForReading(dir)
	if errors.Is(err, wal.ErrWALNotFound) {
		return &ReplayResult{Active: rs.IsActive()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWALReplay, err)
	}
	defer reader.Close()
	return rs.Replay(reader)
}

// Replay re-applies every record from reader through the same paths as live
// traffic, without writing to the WAL. It must run before the replica
// serves requests.
func (rs *ReplicaState) Replay(reader wal.Reader) (*ReplayResult, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	result := &ReplayResult{}

	for {
		msg, err := reader.Read()
		if err == io.EOF {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// crashed mid-write; everything before it is intact
			result.TornTail = true
			log.Warnw("WAL ends in a torn record", "replica", rs.config.Qualifier, "after_seq", result.LastSeq)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWALReplay, err)
		}

		if err := rs.replayMessage(msg, result); err != nil {
			return nil, fmt.Errorf("%w: seq %d: %v", ErrWALReplay, msg.Seq, err)
		}
		result.MessagesReplayed++
		result.LastSeq = msg.Seq
	}

	result.Active = rs.active
	if result.MessagesReplayed > 0 {
		log.Infow("replayed WAL", "replica", rs.config.Qualifier, "records", result.MessagesReplayed,
			"accepted", result.Accepted, "merged", result.Merged, "active", rs.active,
			"valueTS", rs.ledger.valueTS.String(), "replicaTS", rs.replicaTS.String())
	}
	rs.notifyLocked()
	return result, nil
}

// replayMessage replays a single WAL record. Caller holds rs.mu.
func (rs *ReplicaState) replayMessage(msg *wal.Message, result *ReplayResult) error {
	switch msg.Type {
	case wal.MsgTypeAccept:
		op, err := wal.DecodeAccept(msg)
		if err != nil {
			return fmt.Errorf("failed to decode accept: %w", err)
		}
		if err := op.Validate(rs.replicas.Len()); err != nil {
			return fmt.Errorf("invalid accepted entry: %w", err)
		}
		rs.applyAccepted(op)
		rs.metrics.Accepted++
		result.Accepted++
		return nil

	case wal.MsgTypeMerge:
		ops, replicaTS, err := wal.DecodeMerge(msg)
		if err != nil {
			return fmt.Errorf("failed to decode merge: %w", err)
		}
		replicaTS, err = rs.normalizeClock(replicaTS)
		if err != nil {
			return err
		}
		rs.applyMerge(ops, replicaTS)
		rs.metrics.Updates++
		result.Merged += len(ops)
		return nil

	case wal.MsgTypeActivate:
		rs.active = true
		return nil

	case wal.MsgTypeDeactivate:
		rs.active = false
		return nil

	default:
		// Unknown message types are ignored for forward compatibility
		return nil
	}
}
