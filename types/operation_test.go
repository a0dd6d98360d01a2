package types

import (
	"errors"
	"slices"
	"testing"
)

func TestStampAssignsOwnSlot(t *testing.T) {
	op := NewCreateAccount("alice", VectorClock{0, 3, 1})
	if op.IsStamped() {
		t.Fatal("proposed entry should not be stamped")
	}

	accepted := op.Stamp(0, 1)
	if !accepted.TS.Equal(VectorClock{1, 3, 1}) {
		t.Errorf("expected TS [1, 3, 1], got %s", accepted.TS)
	}
	if !accepted.PrevTS.Equal(VectorClock{0, 3, 1}) {
		t.Errorf("stamp changed prevTS: %s", accepted.PrevTS)
	}
	if op.IsStamped() {
		t.Error("stamp mutated the proposed entry")
	}
}

func TestNewOperationCopiesPrevTS(t *testing.T) {
	prev := VectorClock{1, 0, 0}
	op := NewTransfer("broker", "alice", 10, prev)
	prev.Set(0, 5)
	if op.PrevTS.Get(0) != 1 {
		t.Error("operation aliases caller's clock")
	}
}

func TestDedupKey(t *testing.T) {
	a := NewCreateAccount("alice", VectorClock{1, 0, 0})
	b := NewTransfer("broker", "bob", 5, VectorClock{1, 0, 0})
	c := NewCreateAccount("alice", VectorClock{0, 1, 0})

	if a.DedupKey() != b.DedupKey() {
		t.Error("entries with equal prevTS should share a dedup key")
	}
	if a.DedupKey() == c.DedupKey() {
		t.Error("entries with different prevTS should not share a dedup key")
	}
}

func TestOperationValidate(t *testing.T) {
	good := NewTransfer("broker", "alice", 10, VectorClock{0, 0, 0}).Stamp(0, 1)
	if err := good.Validate(3); err != nil {
		t.Fatalf("valid transfer rejected: %v", err)
	}

	tests := []struct {
		name string
		op   *Operation
		want error
	}{
		{"empty account", NewCreateAccount("", VectorClock{0, 0, 0}).Stamp(0, 1), ErrEmptyAccount},
		{"unstamped", NewCreateAccount("alice", VectorClock{0, 0, 0}), ErrNotStamped},
		{"short clock", NewCreateAccount("alice", VectorClock{0, 0}).Stamp(0, 1), ErrClockSizeMismatch},
		{"self transfer", NewTransfer("a", "a", 1, VectorClock{0, 0, 0}).Stamp(0, 1), ErrBadTransfer},
		{"zero amount", NewTransfer("a", "b", 0, VectorClock{0, 0, 0}).Stamp(0, 1), ErrBadTransfer},
		{"unknown type", &Operation{Type: 9, Account: "a", PrevTS: VectorClock{0, 0, 0}, TS: VectorClock{1, 0, 0}}, ErrUnknownOpType},
	}

	for _, tt := range tests {
		if err := tt.op.Validate(3); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestOperationEqual(t *testing.T) {
	a := NewTransfer("broker", "alice", 10, VectorClock{1, 0, 0}).Stamp(0, 2)
	b := a.Copy()
	if !a.Equal(b) {
		t.Error("copy should be equal")
	}

	b.Amount = 11
	if a.Equal(b) {
		t.Error("different amounts should not be equal")
	}
}

func TestSameRequestIgnoresTS(t *testing.T) {
	proposed := NewTransfer("broker", "alice", 10, VectorClock{1, 0, 0})
	accepted := proposed.Stamp(0, 2)
	if !proposed.SameRequest(accepted) {
		t.Error("stamping should not change the request identity")
	}
	if proposed.Equal(accepted) {
		t.Error("proposed and accepted entries differ in TS")
	}

	other := NewTransfer("broker", "bob", 10, VectorClock{1, 0, 0})
	if proposed.SameRequest(other) {
		t.Error("different destination is a different request")
	}
}

func TestCausalCompareOrdersCausally(t *testing.T) {
	first := NewCreateAccount("alice", VectorClock{0, 0, 0}).Stamp(0, 1)
	second := NewTransfer("broker", "alice", 5, VectorClock{1, 0, 0}).Stamp(0, 2)
	third := NewTransfer("alice", "broker", 1, VectorClock{2, 0, 0}).Stamp(1, 1)

	ops := []*Operation{third, first, second}
	slices.SortFunc(ops, CausalCompare)

	if ops[0] != first || ops[1] != second || ops[2] != third {
		t.Errorf("unexpected order: %v", ops)
	}
}

func TestCausalCompareDeterministicForConcurrent(t *testing.T) {
	x := NewCreateAccount("bob", VectorClock{1, 0, 0}).Stamp(1, 1)
	y := NewCreateAccount("carol", VectorClock{0, 1, 0}).Stamp(2, 1)
	z := NewCreateAccount("dave", VectorClock{0, 0, 1}).Stamp(0, 1)

	a := []*Operation{x, y, z}
	b := []*Operation{z, y, x}
	slices.SortFunc(a, CausalCompare)
	slices.SortFunc(b, CausalCompare)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sort depends on input order at %d: %s vs %s", i, a[i], b[i])
		}
	}
	if CausalCompare(x, y) != -CausalCompare(y, x) {
		t.Error("comparator is not antisymmetric")
	}
}

func TestOpTypeString(t *testing.T) {
	if OpCreateAccount.String() != "OP_CREATE_ACCOUNT" {
		t.Errorf("unexpected name %s", OpCreateAccount)
	}
	if OpTransfer.String() != "OP_TRANSFER_TO" {
		t.Errorf("unexpected name %s", OpTransfer)
	}
}
