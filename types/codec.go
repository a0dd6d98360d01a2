package types

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Binary layout uses protobuf wire format so records stay readable by
// any protobuf decoder given a matching schema:
//
//	Operation { 1: type varint, 2: account string, 3: destination string,
//	            4: amount sint64, 5: prevTS packed varint, 6: ts packed varint }
//	Batch     { 1: repeated Operation, 2: replicaTS packed varint }

var ErrMalformed = errors.New("malformed binary encoding")

const (
	opFieldType        protowire.Number = 1
	opFieldAccount     protowire.Number = 2
	opFieldDestination protowire.Number = 3
	opFieldAmount      protowire.Number = 4
	opFieldPrevTS      protowire.Number = 5
	opFieldTS          protowire.Number = 6

	batchFieldOp        protowire.Number = 1
	batchFieldReplicaTS protowire.Number = 2
)

// AppendClock appends the clock as a packed varint field
func AppendClock(b []byte, num protowire.Number, vc VectorClock) []byte {
	var packed []byte
	for _, v := range vc {
		packed = protowire.AppendVarint(packed, v)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// DecodeClock decodes a packed varint payload
func DecodeClock(packed []byte) (VectorClock, error) {
	vc := VectorClock{}
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return nil, fmt.Errorf("%w: clock: %v", ErrMalformed, protowire.ParseError(n))
		}
		vc = append(vc, v)
		packed = packed[n:]
	}
	return vc, nil
}

// MarshalBinary encodes the operation
func (op *Operation) MarshalBinary() ([]byte, error) {
	return op.appendBinary(nil), nil
}

func (op *Operation) appendBinary(b []byte) []byte {
	b = protowire.AppendTag(b, opFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(op.Type))
	b = protowire.AppendTag(b, opFieldAccount, protowire.BytesType)
	b = protowire.AppendString(b, op.Account)
	if op.Type == OpTransfer {
		b = protowire.AppendTag(b, opFieldDestination, protowire.BytesType)
		b = protowire.AppendString(b, op.Destination)
		b = protowire.AppendTag(b, opFieldAmount, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(op.Amount))
	}
	if op.PrevTS != nil {
		b = AppendClock(b, opFieldPrevTS, op.PrevTS)
	}
	if op.TS != nil {
		b = AppendClock(b, opFieldTS, op.TS)
	}
	return b
}

// UnmarshalBinary decodes an operation. Unknown fields are skipped.
func (op *Operation) UnmarshalBinary(data []byte) error {
	*op = Operation{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: operation tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == opFieldType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return fmt.Errorf("%w: type: %v", ErrMalformed, protowire.ParseError(m))
			}
			op.Type = OpType(v)
			n = m
		case num == opFieldAccount && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return fmt.Errorf("%w: account: %v", ErrMalformed, protowire.ParseError(m))
			}
			op.Account = s
			n = m
		case num == opFieldDestination && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return fmt.Errorf("%w: destination: %v", ErrMalformed, protowire.ParseError(m))
			}
			op.Destination = s
			n = m
		case num == opFieldAmount && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return fmt.Errorf("%w: amount: %v", ErrMalformed, protowire.ParseError(m))
			}
			op.Amount = protowire.DecodeZigZag(v)
			n = m
		case (num == opFieldPrevTS || num == opFieldTS) && typ == protowire.BytesType:
			packed, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return fmt.Errorf("%w: clock: %v", ErrMalformed, protowire.ParseError(m))
			}
			vc, err := DecodeClock(packed)
			if err != nil {
				return err
			}
			if num == opFieldPrevTS {
				op.PrevTS = vc
			} else {
				op.TS = vc
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
		}
		data = data[n:]
	}
	return nil
}

// MarshalBatch encodes a gossip batch: a run of entries plus the sender's
// replicaTS.
func MarshalBatch(ops []*Operation, replicaTS VectorClock) []byte {
	var b []byte
	for _, op := range ops {
		b = protowire.AppendTag(b, batchFieldOp, protowire.BytesType)
		b = protowire.AppendBytes(b, op.appendBinary(nil))
	}
	if replicaTS != nil {
		b = AppendClock(b, batchFieldReplicaTS, replicaTS)
	}
	return b
}

// UnmarshalBatch decodes a batch produced by MarshalBatch
func UnmarshalBatch(data []byte) ([]*Operation, VectorClock, error) {
	var (
		ops       []*Operation
		replicaTS VectorClock
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, nil, fmt.Errorf("%w: batch tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.BytesType || (num != batchFieldOp && num != batchFieldReplicaTS) {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		payload, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return nil, nil, fmt.Errorf("%w: batch field %d: %v", ErrMalformed, num, protowire.ParseError(m))
		}
		data = data[m:]

		if num == batchFieldOp {
			op := &Operation{}
			if err := op.UnmarshalBinary(payload); err != nil {
				return nil, nil, err
			}
			ops = append(ops, op)
			continue
		}
		vc, err := DecodeClock(payload)
		if err != nil {
			return nil, nil, err
		}
		replicaTS = vc
	}
	return ops, replicaTS, nil
}
