package types

import (
	"errors"
	"fmt"
	"strings"
)

// MaxReplicas bounds the vector clock size
const MaxReplicas = 64

// Errors
var (
	ErrReplicaNotFound       = errors.New("replica not found")
	ErrDuplicateReplica      = errors.New("duplicate replica")
	ErrEmptyReplicaSet       = errors.New("empty replica set")
	ErrTooManyReplicas       = errors.New("too many replicas")
	ErrEmptyReplicaQualifier = errors.New("replica has empty qualifier")
)

// ReplicaSet maps replica qualifiers to vector clock slots. The slot of a
// qualifier is its position in the set and never changes.
type ReplicaSet struct {
	qualifiers []string
	byName     map[string]int
}

// NewReplicaSet creates a ReplicaSet from an ordered list of qualifiers
func NewReplicaSet(qualifiers []string) (*ReplicaSet, error) {
	if len(qualifiers) == 0 {
		return nil, ErrEmptyReplicaSet
	}
	if len(qualifiers) > MaxReplicas {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyReplicas, len(qualifiers), MaxReplicas)
	}

	rs := &ReplicaSet{
		qualifiers: make([]string, len(qualifiers)),
		byName:     make(map[string]int, len(qualifiers)),
	}
	for i, q := range qualifiers {
		if q == "" {
			return nil, fmt.Errorf("%w: replica %d", ErrEmptyReplicaQualifier, i)
		}
		if _, exists := rs.byName[q]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateReplica, q)
		}
		rs.qualifiers[i] = q
		rs.byName[q] = i
	}
	return rs, nil
}

// DefaultReplicaSet returns the three-replica set A, B, C
func DefaultReplicaSet() *ReplicaSet {
	rs, err := NewReplicaSet([]string{"A", "B", "C"})
	if err != nil {
		panic(err)
	}
	return rs
}

// ParseReplicaSet parses a comma-separated qualifier list such as "A,B,C"
func ParseReplicaSet(s string) (*ReplicaSet, error) {
	var qs []string
	for _, part := range strings.Split(s, ",") {
		if q := strings.TrimSpace(part); q != "" {
			qs = append(qs, q)
		}
	}
	return NewReplicaSet(qs)
}

// IndexOf returns the clock slot of a qualifier
func (rs *ReplicaSet) IndexOf(qualifier string) (int, error) {
	idx, ok := rs.byName[qualifier]
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrReplicaNotFound, qualifier)
	}
	return idx, nil
}

// Qualifier returns the qualifier at slot i, or "" if out of range
func (rs *ReplicaSet) Qualifier(i int) string {
	if i < 0 || i >= len(rs.qualifiers) {
		return ""
	}
	return rs.qualifiers[i]
}

// Has reports whether the qualifier belongs to the set
func (rs *ReplicaSet) Has(qualifier string) bool {
	_, ok := rs.byName[qualifier]
	return ok
}

// Len returns the number of replicas
func (rs *ReplicaSet) Len() int {
	return len(rs.qualifiers)
}

// Qualifiers returns a copy of the ordered qualifier list
func (rs *ReplicaSet) Qualifiers() []string {
	out := make([]string, len(rs.qualifiers))
	copy(out, rs.qualifiers)
	return out
}

// Others returns every qualifier except self, in slot order
func (rs *ReplicaSet) Others(self string) []string {
	out := make([]string, 0, len(rs.qualifiers))
	for _, q := range rs.qualifiers {
		if q != self {
			out = append(out, q)
		}
	}
	return out
}

// NewClock returns a zero clock sized for this set
func (rs *ReplicaSet) NewClock() VectorClock {
	return NewVectorClock(len(rs.qualifiers))
}

// String renders the set as "A,B,C"
func (rs *ReplicaSet) String() string {
	return strings.Join(rs.qualifiers, ",")
}
