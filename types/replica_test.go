package types

import (
	"errors"
	"testing"
)

func TestDefaultReplicaSet(t *testing.T) {
	rs := DefaultReplicaSet()
	if rs.Len() != 3 {
		t.Fatalf("expected 3 replicas, got %d", rs.Len())
	}

	for i, q := range []string{"A", "B", "C"} {
		idx, err := rs.IndexOf(q)
		if err != nil {
			t.Fatalf("IndexOf(%s): %v", q, err)
		}
		if idx != i {
			t.Errorf("expected %s at slot %d, got %d", q, i, idx)
		}
		if rs.Qualifier(i) != q {
			t.Errorf("expected qualifier %s at %d, got %s", q, i, rs.Qualifier(i))
		}
	}

	if _, err := rs.IndexOf("D"); !errors.Is(err, ErrReplicaNotFound) {
		t.Errorf("expected ErrReplicaNotFound, got %v", err)
	}
	if rs.NewClock().Len() != 3 {
		t.Error("clock size should match set size")
	}
}

func TestNewReplicaSetErrors(t *testing.T) {
	if _, err := NewReplicaSet(nil); !errors.Is(err, ErrEmptyReplicaSet) {
		t.Errorf("expected ErrEmptyReplicaSet, got %v", err)
	}
	if _, err := NewReplicaSet([]string{"A", "A"}); !errors.Is(err, ErrDuplicateReplica) {
		t.Errorf("expected ErrDuplicateReplica, got %v", err)
	}
	if _, err := NewReplicaSet([]string{"A", ""}); !errors.Is(err, ErrEmptyReplicaQualifier) {
		t.Errorf("expected ErrEmptyReplicaQualifier, got %v", err)
	}
}

func TestParseReplicaSet(t *testing.T) {
	rs, err := ParseReplicaSet(" A, B ,C,")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if rs.String() != "A,B,C" {
		t.Errorf("unexpected set %s", rs)
	}

	others := rs.Others("B")
	if len(others) != 2 || others[0] != "A" || others[1] != "C" {
		t.Errorf("unexpected others %v", others)
	}
}
