package wal

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/blockberries/distledger/types"
)

// Errors
var (
	ErrWALClosed    = errors.New("WAL is closed")
	ErrWALCorrupted = errors.New("WAL is corrupted")
	ErrWALNotFound  = errors.New("WAL file not found")
	ErrInvalidType  = errors.New("unexpected WAL message type")
)

// MessageType identifies the type of WAL message
type MessageType uint8

const (
	MsgTypeUnknown MessageType = iota
	// MsgTypeAccept carries one locally accepted, stamped entry
	MsgTypeAccept
	// MsgTypeMerge carries an ingested gossip batch and the sender's replicaTS
	MsgTypeMerge
	MsgTypeActivate
	MsgTypeDeactivate
)

// String returns the message type name
func (t MessageType) String() string {
	switch t {
	case MsgTypeAccept:
		return "accept"
	case MsgTypeMerge:
		return "merge"
	case MsgTypeActivate:
		return "activate"
	case MsgTypeDeactivate:
		return "deactivate"
	default:
		return "unknown"
	}
}

const (
	msgFieldType protowire.Number = 1
	msgFieldSeq  protowire.Number = 2
	msgFieldData protowire.Number = 3
)

// Message represents a WAL record. Seq is assigned by the WAL on write and
// increases by one per record across segments.
type Message struct {
	Type MessageType
	Seq  uint64
	Data []byte
}

// Marshal serializes the message
func (m *Message) Marshal() []byte {
	b := protowire.AppendTag(nil, msgFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	b = protowire.AppendTag(b, msgFieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Seq)
	if len(m.Data) > 0 {
		b = protowire.AppendTag(b, msgFieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	return b
}

// Unmarshal deserializes the message
func (m *Message) Unmarshal(data []byte) error {
	*m = Message{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrWALCorrupted, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == msgFieldType && typ == protowire.VarintType:
			v, m2 := protowire.ConsumeVarint(data)
			if m2 < 0 {
				return fmt.Errorf("%w: type: %v", ErrWALCorrupted, protowire.ParseError(m2))
			}
			m.Type = MessageType(v)
			n = m2
		case num == msgFieldSeq && typ == protowire.VarintType:
			v, m2 := protowire.ConsumeVarint(data)
			if m2 < 0 {
				return fmt.Errorf("%w: seq: %v", ErrWALCorrupted, protowire.ParseError(m2))
			}
			m.Seq = v
			n = m2
		case num == msgFieldData && typ == protowire.BytesType:
			v, m2 := protowire.ConsumeBytes(data)
			if m2 < 0 {
				return fmt.Errorf("%w: data: %v", ErrWALCorrupted, protowire.ParseError(m2))
			}
			m.Data = append([]byte(nil), v...)
			n = m2
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrWALCorrupted, num, protowire.ParseError(n))
			}
		}
		data = data[n:]
	}
	return nil
}

// WAL interface for write-ahead logging
type WAL interface {
	// Write writes a message to the WAL
	Write(msg *Message) error

	// WriteSync writes a message and ensures it's synced to disk
	WriteSync(msg *Message) error

	// FlushAndSync flushes and syncs all pending writes
	FlushAndSync() error

	// Start starts the WAL
	Start() error

	// Stop stops the WAL
	Stop() error

	// Group returns the current WAL group (for rotation)
	Group() *Group
}

// Reader interface for reading from WAL
type Reader interface {
	// Read reads the next message from the WAL
	Read() (*Message, error)

	// Close closes the reader
	Close() error
}

// Group represents a group of WAL files (for rotation)
type Group struct {
	Dir      string
	Prefix   string
	MaxSize  int64
	MinIndex int
	MaxIndex int
}

// NewAcceptMessage creates a WAL message for a locally accepted entry
func NewAcceptMessage(op *types.Operation) (*Message, error) {
	data, err := op.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Message{
		Type: MsgTypeAccept,
		Data: data,
	}, nil
}

// NewMergeMessage creates a WAL message for an ingested gossip batch
func NewMergeMessage(ops []*types.Operation, replicaTS types.VectorClock) *Message {
	return &Message{
		Type: MsgTypeMerge,
		Data: types.MarshalBatch(ops, replicaTS),
	}
}

// NewActivationMessage creates a WAL message for an activation change
func NewActivationMessage(active bool) *Message {
	if active {
		return &Message{Type: MsgTypeActivate}
	}
	return &Message{Type: MsgTypeDeactivate}
}

// DecodeAccept decodes the entry of an accept message
func DecodeAccept(msg *Message) (*types.Operation, error) {
	if msg.Type != MsgTypeAccept {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, msg.Type)
	}
	op := &types.Operation{}
	if err := op.UnmarshalBinary(msg.Data); err != nil {
		return nil, err
	}
	return op, nil
}

// DecodeMerge decodes the batch of a merge message
func DecodeMerge(msg *Message) ([]*types.Operation, types.VectorClock, error) {
	if msg.Type != MsgTypeMerge {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidType, msg.Type)
	}
	return types.UnmarshalBatch(msg.Data)
}

// NopWAL is a no-op WAL implementation for testing
type NopWAL struct{}

func (w *NopWAL) Write(msg *Message) error     { return nil }
func (w *NopWAL) WriteSync(msg *Message) error { return nil }
func (w *NopWAL) FlushAndSync() error          { return nil }
func (w *NopWAL) Start() error                 { return nil }
func (w *NopWAL) Stop() error                  { return nil }
func (w *NopWAL) Group() *Group                { return nil }

// Ensure NopWAL implements WAL
var _ WAL = (*NopWAL)(nil)

// NopReader is a no-op reader
type NopReader struct{}

func (r *NopReader) Read() (*Message, error) { return nil, io.EOF }
func (r *NopReader) Close() error            { return nil }

var _ Reader = (*NopReader)(nil)
