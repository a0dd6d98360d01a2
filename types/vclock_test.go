package types

import (
	"encoding/json"
	"testing"
)

func TestVectorClockMerge(t *testing.T) {
	a := VectorClock{1, 5, 0}
	b := VectorClock{3, 2, 0}

	a.Merge(b)
	if !a.Equal(VectorClock{3, 5, 0}) {
		t.Errorf("expected [3, 5, 0], got %s", a)
	}
	// b must be untouched
	if !b.Equal(VectorClock{3, 2, 0}) {
		t.Errorf("merge mutated source: %s", b)
	}
}

func TestVectorClockMergeCommutativeIdempotent(t *testing.T) {
	clocks := []VectorClock{
		{0, 0, 0},
		{1, 0, 0},
		{0, 2, 1},
		{4, 4, 4},
		{2, 0, 7},
	}

	for _, a := range clocks {
		for _, b := range clocks {
			ab := a.Copy()
			ab.Merge(b)
			ba := b.Copy()
			ba.Merge(a)
			if !ab.Equal(ba) {
				t.Errorf("merge not commutative for %s, %s: %s vs %s", a, b, ab, ba)
			}

			again := ab.Copy()
			again.Merge(b)
			if !again.Equal(ab) {
				t.Errorf("merge not idempotent for %s, %s", a, b)
			}
		}
	}
}

func TestVectorClockMergeNil(t *testing.T) {
	var vc VectorClock
	vc.Merge(VectorClock{1, 2, 3})
	if !vc.Equal(VectorClock{1, 2, 3}) {
		t.Errorf("expected nil clock to grow, got %s", vc)
	}
}

func TestVectorClockComparisons(t *testing.T) {
	tests := []struct {
		a, b     VectorClock
		less     bool
		lessEq   bool
		equal    bool
		ordering Ordering
	}{
		{VectorClock{0, 0, 0}, VectorClock{0, 0, 0}, false, true, true, Equal},
		{VectorClock{0, 0, 0}, VectorClock{1, 0, 0}, true, true, false, Before},
		{VectorClock{2, 1, 0}, VectorClock{1, 1, 0}, false, false, false, After},
		{VectorClock{1, 0, 0}, VectorClock{0, 1, 0}, false, false, false, Concurrent},
		{VectorClock{1, 2, 3}, VectorClock{1, 2, 4}, true, true, false, Before},
	}

	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.less {
			t.Errorf("%s < %s: expected %v, got %v", tt.a, tt.b, tt.less, got)
		}
		if got := tt.a.LessOrEqual(tt.b); got != tt.lessEq {
			t.Errorf("%s <= %s: expected %v, got %v", tt.a, tt.b, tt.lessEq, got)
		}
		if got := tt.a.Equal(tt.b); got != tt.equal {
			t.Errorf("%s == %s: expected %v, got %v", tt.a, tt.b, tt.equal, got)
		}
		if got := tt.a.Compare(tt.b); got != tt.ordering {
			t.Errorf("compare(%s, %s): expected %s, got %s", tt.a, tt.b, tt.ordering, got)
		}
	}
}

func TestVectorClockExactlyOneRelation(t *testing.T) {
	clocks := []VectorClock{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}, {2, 0, 1}, {1, 1, 1},
	}

	for _, a := range clocks {
		for _, b := range clocks {
			n := 0
			if a.Less(b) {
				n++
			}
			if b.Less(a) {
				n++
			}
			if a.Equal(b) {
				n++
			}
			if a.Compare(b) == Concurrent {
				n++
			}
			if n != 1 {
				t.Errorf("%s vs %s: %d relations hold, want exactly 1", a, b, n)
			}
		}
	}
}

func TestVectorClockSizeMismatch(t *testing.T) {
	a := VectorClock{1, 2}
	b := VectorClock{1, 2, 3}

	if a.LessOrEqual(b) || a.Equal(b) || a.Less(b) {
		t.Error("clocks of different size should not compare")
	}
	if a.Compare(b) != Concurrent {
		t.Error("clocks of different size should be concurrent")
	}
}

func TestVectorClockString(t *testing.T) {
	vc := VectorClock{1, 0, 12}
	if vc.String() != "[1, 0, 12]" {
		t.Errorf("unexpected string %q", vc.String())
	}
	if vc.Key() != "1.0.12" {
		t.Errorf("unexpected key %q", vc.Key())
	}
}

func TestVectorClockCopyIndependent(t *testing.T) {
	a := VectorClock{1, 2, 3}
	b := a.Copy()
	b.Set(0, 9)
	if a.Get(0) != 1 {
		t.Error("copy shares storage with original")
	}

	var nilClock VectorClock
	if nilClock.Copy() != nil {
		t.Error("copy of nil clock should be nil")
	}
}

func TestVectorClockGetSetOutOfRange(t *testing.T) {
	vc := NewVectorClock(3)
	vc.Set(5, 1)
	vc.Set(-1, 1)
	if vc.Get(5) != 0 || vc.Get(-1) != 0 {
		t.Error("out of range access should be ignored")
	}
	if vc.Sum() != 0 {
		t.Errorf("expected sum 0, got %d", vc.Sum())
	}
}

func TestVectorClockJSON(t *testing.T) {
	vc := VectorClock{3, 0, 1}
	data, err := json.Marshal(vc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != "[3,0,1]" {
		t.Errorf("unexpected json %s", data)
	}

	var decoded VectorClock
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !decoded.Equal(vc) {
		t.Errorf("expected %s, got %s", vc, decoded)
	}
}

func TestCompareLex(t *testing.T) {
	if CompareLex(VectorClock{0, 1}, VectorClock{1, 0}) != -1 {
		t.Error("expected [0, 1] before [1, 0]")
	}
	if CompareLex(VectorClock{1, 0}, VectorClock{1, 0}) != 0 {
		t.Error("expected equal clocks to compare 0")
	}
	if CompareLex(VectorClock{1}, VectorClock{1, 0}) != -1 {
		t.Error("expected shorter clock first")
	}
}
