package types

import (
	"errors"
	"fmt"
)

// OpType identifies the kind of ledger operation
type OpType uint8

const (
	OpUnknown OpType = iota
	OpCreateAccount
	OpTransfer
)

// String returns the operation name used in ledger renderings
func (t OpType) String() string {
	switch t {
	case OpCreateAccount:
		return "OP_CREATE_ACCOUNT"
	case OpTransfer:
		return "OP_TRANSFER_TO"
	default:
		return "OP_UNSPECIFIED"
	}
}

// Errors
var (
	ErrEmptyAccount      = errors.New("empty account id")
	ErrUnknownOpType     = errors.New("unknown operation type")
	ErrMissingPrevTS     = errors.New("operation has no prevTS")
	ErrNotStamped        = errors.New("operation is not stamped")
	ErrClockSizeMismatch = errors.New("vector clock size mismatch")
	ErrBadTransfer       = errors.New("malformed transfer")
)

// Operation is one ledger entry. A proposed entry has a nil TS; Stamp
// produces the accepted entry. Accepted entries are never mutated.
type Operation struct {
	Type        OpType      `json:"type"`
	Account     string      `json:"account"`
	Destination string      `json:"destination,omitempty"`
	Amount      int64       `json:"amount,omitempty"`
	PrevTS      VectorClock `json:"prevTS"`
	TS          VectorClock `json:"ts,omitempty"`
}

// NewCreateAccount proposes an account creation
func NewCreateAccount(account string, prevTS VectorClock) *Operation {
	return &Operation{
		Type:    OpCreateAccount,
		Account: account,
		PrevTS:  prevTS.Copy(),
	}
}

// NewTransfer proposes a transfer of amount from one account to another
func NewTransfer(from, to string, amount int64, prevTS VectorClock) *Operation {
	return &Operation{
		Type:        OpTransfer,
		Account:     from,
		Destination: to,
		Amount:      amount,
		PrevTS:      prevTS.Copy(),
	}
}

// Stamp returns the accepted form of op: TS equals PrevTS with slot
// overwritten by counter.
func (op *Operation) Stamp(slot int, counter uint64) *Operation {
	accepted := op.Copy()
	accepted.TS = op.PrevTS.Copy()
	accepted.TS.Set(slot, counter)
	return accepted
}

// IsStamped reports whether the entry has been accepted by a replica
func (op *Operation) IsStamped() bool {
	return op.TS != nil
}

// DedupKey is the index key for duplicate detection: the prevTS the
// issuing client had observed. Redeliveries of one operation share it.
func (op *Operation) DedupKey() string {
	return op.PrevTS.Key()
}

// SameRequest reports whether op and other carry the same client request:
// equal kind, accounts, amount and prevTS. TS is ignored so a proposed
// entry can be matched against an accepted one.
func (op *Operation) SameRequest(other *Operation) bool {
	if op == nil || other == nil {
		return op == other
	}
	return op.Type == other.Type &&
		op.Account == other.Account &&
		op.Destination == other.Destination &&
		op.Amount == other.Amount &&
		op.PrevTS.Equal(other.PrevTS)
}

// Copy returns a deep copy
func (op *Operation) Copy() *Operation {
	if op == nil {
		return nil
	}
	c := *op
	c.PrevTS = op.PrevTS.Copy()
	c.TS = op.TS.Copy()
	return &c
}

// Equal compares the full entry content
func (op *Operation) Equal(other *Operation) bool {
	if op == nil || other == nil {
		return op == other
	}
	return op.SameRequest(other) && op.TS.Equal(other.TS)
}

// Validate checks the shape of an accepted entry for a cluster of n replicas
func (op *Operation) Validate(n int) error {
	if op.Account == "" {
		return ErrEmptyAccount
	}
	if op.PrevTS == nil {
		return ErrMissingPrevTS
	}
	if op.PrevTS.Len() != n {
		return fmt.Errorf("%w: prevTS has %d slots, want %d", ErrClockSizeMismatch, op.PrevTS.Len(), n)
	}
	if !op.IsStamped() {
		return ErrNotStamped
	}
	if op.TS.Len() != n {
		return fmt.Errorf("%w: TS has %d slots, want %d", ErrClockSizeMismatch, op.TS.Len(), n)
	}

	switch op.Type {
	case OpCreateAccount:
		return nil
	case OpTransfer:
		if op.Destination == "" {
			return fmt.Errorf("%w: empty destination", ErrBadTransfer)
		}
		if op.Destination == op.Account {
			return fmt.Errorf("%w: source equals destination", ErrBadTransfer)
		}
		if op.Amount <= 0 {
			return fmt.Errorf("%w: non-positive amount %d", ErrBadTransfer, op.Amount)
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownOpType, op.Type)
	}
}

// String returns a compact single-line description
func (op *Operation) String() string {
	switch op.Type {
	case OpCreateAccount:
		return fmt.Sprintf("create(%s) prev=%s ts=%s", op.Account, op.PrevTS, op.TS)
	case OpTransfer:
		return fmt.Sprintf("transfer(%s->%s, %d) prev=%s ts=%s",
			op.Account, op.Destination, op.Amount, op.PrevTS, op.TS)
	default:
		return fmt.Sprintf("unknown(%d)", op.Type)
	}
}

// CausalCompare is the apply order for stable entries. Entries whose
// prevTS is causally earlier sort first. Concurrent or equal prevTS fall
// back to prevTS slot sum, then lexicographic prevTS, then TS, then account
// ids, so every replica sorts the same set identically.
func CausalCompare(a, b *Operation) int {
	switch a.PrevTS.Compare(b.PrevTS) {
	case Before:
		return -1
	case After:
		return 1
	}
	if sa, sb := a.PrevTS.Sum(), b.PrevTS.Sum(); sa != sb {
		if sa < sb {
			return -1
		}
		return 1
	}
	if c := CompareLex(a.PrevTS, b.PrevTS); c != 0 {
		return c
	}
	if c := CompareLex(a.TS, b.TS); c != 0 {
		return c
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	if a.Account != b.Account {
		if a.Account < b.Account {
			return -1
		}
		return 1
	}
	if a.Destination != b.Destination {
		if a.Destination < b.Destination {
			return -1
		}
		return 1
	}
	return 0
}
