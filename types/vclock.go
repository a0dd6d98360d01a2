package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Ordering is the causal relation between two vector clocks.
type Ordering int

const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

// String returns the ordering name
func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// VectorClock is a fixed-size vector of per-replica counters. Slot i belongs
// to the replica at index i of the ReplicaSet.
type VectorClock []uint64

// NewVectorClock returns a zero clock with n slots
func NewVectorClock(n int) VectorClock {
	return make(VectorClock, n)
}

// Copy returns an independent copy. A nil clock copies to nil.
func (vc VectorClock) Copy() VectorClock {
	if vc == nil {
		return nil
	}
	c := make(VectorClock, len(vc))
	copy(c, vc)
	return c
}

// Len returns the number of slots
func (vc VectorClock) Len() int {
	return len(vc)
}

// Get returns slot i, or 0 if i is out of range
func (vc VectorClock) Get(i int) uint64 {
	if i < 0 || i >= len(vc) {
		return 0
	}
	return vc[i]
}

// Set overwrites slot i. Out of range indexes are ignored.
func (vc VectorClock) Set(i int, v uint64) {
	if i < 0 || i >= len(vc) {
		return
	}
	vc[i] = v
}

// Merge sets every slot of vc to the maximum of itself and other.
// If other is longer, vc is grown; the result is returned so callers
// holding a nil clock can write vc = vc.Merge(other).
func (vc *VectorClock) Merge(other VectorClock) VectorClock {
	if len(other) > len(*vc) {
		grown := make(VectorClock, len(other))
		copy(grown, *vc)
		*vc = grown
	}
	for i, v := range other {
		if v > (*vc)[i] {
			(*vc)[i] = v
		}
	}
	return *vc
}

// LessOrEqual reports whether every slot of vc is <= the same slot of other
func (vc VectorClock) LessOrEqual(other VectorClock) bool {
	if len(vc) != len(other) {
		return false
	}
	for i := range vc {
		if vc[i] > other[i] {
			return false
		}
	}
	return true
}

// Equal reports slot-wise equality
func (vc VectorClock) Equal(other VectorClock) bool {
	if len(vc) != len(other) {
		return false
	}
	for i := range vc {
		if vc[i] != other[i] {
			return false
		}
	}
	return true
}

// Less reports vc <= other and vc != other
func (vc VectorClock) Less(other VectorClock) bool {
	return vc.LessOrEqual(other) && !vc.Equal(other)
}

// Compare returns the causal relation of vc to other.
// Clocks of different length are Concurrent.
func (vc VectorClock) Compare(other VectorClock) Ordering {
	if len(vc) != len(other) {
		return Concurrent
	}
	le, ge := true, true
	for i := range vc {
		if vc[i] > other[i] {
			le = false
		}
		if vc[i] < other[i] {
			ge = false
		}
	}
	switch {
	case le && ge:
		return Equal
	case le:
		return Before
	case ge:
		return After
	default:
		return Concurrent
	}
}

// Sum returns the total of all slots. If a < b then a.Sum() < b.Sum().
func (vc VectorClock) Sum() uint64 {
	var s uint64
	for _, v := range vc {
		s += v
	}
	return s
}

// Key returns a string usable as a map key for value-equality lookups
func (vc VectorClock) Key() string {
	var sb strings.Builder
	for i, v := range vc {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.FormatUint(v, 10))
	}
	return sb.String()
}

// String renders the clock as "[a, b, c]"
func (vc VectorClock) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vc {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatUint(v, 10))
	}
	sb.WriteByte(']')
	return sb.String()
}

// MarshalJSON encodes the clock as an array; a nil clock encodes as null
func (vc VectorClock) MarshalJSON() ([]byte, error) {
	if vc == nil {
		return []byte("null"), nil
	}
	return json.Marshal([]uint64(vc))
}

// UnmarshalJSON decodes an array of counters
func (vc *VectorClock) UnmarshalJSON(data []byte) error {
	var raw []uint64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*vc = VectorClock(raw)
	return nil
}

// CompareLex orders clocks lexicographically by slot. It is a total order
// used only as a tie-break; it carries no causal meaning.
func CompareLex(a, b VectorClock) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
