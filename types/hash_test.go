package types

import (
	"testing"
)

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("ledger"))
	b := HashBytes([]byte("ledger"))
	if !a.Equal(b) {
		t.Error("same input should give same digest")
	}
	if a.IsZero() {
		t.Error("digest should not be zero")
	}
	if len(a.String()) != 2*HashSize {
		t.Errorf("unexpected hex length %d", len(a.String()))
	}
	if len(a.Short()) != 8 {
		t.Errorf("unexpected short length %d", len(a.Short()))
	}
}

func TestLedgerDigestSensitiveToContent(t *testing.T) {
	create := NewCreateAccount("alice", VectorClock{0, 0, 0}).Stamp(0, 1)
	transfer := NewTransfer("broker", "alice", 100, VectorClock{1, 0, 0}).Stamp(0, 2)
	ts := VectorClock{2, 0, 0}

	base := LedgerDigest([]*Operation{create, transfer}, ts)

	if !base.Equal(LedgerDigest([]*Operation{create, transfer}, ts.Copy())) {
		t.Error("equal ledgers should digest equally")
	}
	if base.Equal(LedgerDigest([]*Operation{transfer, create}, ts)) {
		t.Error("order should change the digest")
	}
	if base.Equal(LedgerDigest([]*Operation{create, transfer}, VectorClock{2, 1, 0})) {
		t.Error("replicaTS should change the digest")
	}
	if base.Equal(LedgerDigest([]*Operation{create}, ts)) {
		t.Error("missing entry should change the digest")
	}
}

func TestHashOperation(t *testing.T) {
	a := NewCreateAccount("alice", VectorClock{0, 0, 0}).Stamp(0, 1)
	b := NewCreateAccount("alice", VectorClock{0, 0, 0}).Stamp(1, 1)
	if HashOperation(a).Equal(HashOperation(b)) {
		t.Error("different TS should give different digests")
	}
}
