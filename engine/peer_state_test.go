package engine

import (
	"errors"
	"testing"

	"github.com/blockberries/distledger/types"
)

func TestPeerStateNeedsPush(t *testing.T) {
	ps := NewPeerState("B")

	digest := types.HashBytes([]byte("ledger"))
	if !ps.NeedsPush("localhost:2002", digest) {
		t.Error("a fresh peer should need a push")
	}

	ps.MarkPushed("localhost:2002", digest, types.VectorClock{1, 0, 0})
	if ps.NeedsPush("localhost:2002", digest) {
		t.Error("peer should not need the digest it acknowledged")
	}
	if !ps.NeedsPush("localhost:2002", types.HashBytes([]byte("other"))) {
		t.Error("peer should need a different digest")
	}
	if !ps.NeedsPush("localhost:3002", digest) {
		t.Error("peer that moved should need a push")
	}

	pgs := ps.GetGossipState()
	if pgs.Pushes != 1 {
		t.Errorf("expected 1 push, got %d", pgs.Pushes)
	}
	if pgs.Address != "localhost:2002" {
		t.Errorf("unexpected address %q", pgs.Address)
	}
	if !pgs.LastReplicaTS.Equal(types.VectorClock{1, 0, 0}) {
		t.Errorf("unexpected replicaTS %s", pgs.LastReplicaTS)
	}
	if ps.LastSeen().IsZero() {
		t.Error("last seen should be set")
	}
}

func TestPeerStateMarkFailed(t *testing.T) {
	ps := NewPeerState("C")
	digest := types.HashBytes([]byte("ledger"))

	ps.MarkPushed("localhost:2003", digest, types.VectorClock{0, 0, 1})
	ps.MarkFailed("localhost:2003", errors.New("connection refused"))

	if ps.Failures() != 1 {
		t.Errorf("expected 1 failure, got %d", ps.Failures())
	}
	if !ps.NeedsPush("localhost:2003", digest) {
		t.Error("a failed peer should be retried")
	}
	if ps.GetGossipState().LastError != "connection refused" {
		t.Errorf("unexpected last error %q", ps.GetGossipState().LastError)
	}

	ps.MarkPushed("localhost:2003", digest, types.VectorClock{0, 0, 1})
	if ps.GetGossipState().LastError != "" {
		t.Error("a successful push should clear the last error")
	}
}

func TestPeerStateObserveReplicaTS(t *testing.T) {
	ps := NewPeerState("B")
	digest := types.HashBytes([]byte("ledger"))

	if ps.ObserveReplicaTS(types.VectorClock{0, 0, 0}) {
		t.Error("a peer never pushed to has nothing to drop")
	}

	ps.MarkPushed("localhost:2002", digest, types.VectorClock{2, 0, 0})
	if ps.ObserveReplicaTS(types.VectorClock{2, 1, 0}) {
		t.Error("a replicaTS covering the last push should keep the digest")
	}
	if ps.NeedsPush("localhost:2002", digest) {
		t.Error("peer should still be acknowledged")
	}

	if !ps.ObserveReplicaTS(types.VectorClock{1, 0, 0}) {
		t.Error("a replicaTS behind the last push should drop the digest")
	}
	if !ps.NeedsPush("localhost:2002", digest) {
		t.Error("peer that lost state should need a push")
	}
}

func TestPeerStateGossipStateIsCopy(t *testing.T) {
	ps := NewPeerState("B")
	ps.MarkPushed("addr", types.HashBytes([]byte("x")), types.VectorClock{1, 2, 3})

	pgs := ps.GetGossipState()
	pgs.LastReplicaTS.Set(0, 99)

	if ps.GetGossipState().LastReplicaTS.Get(0) != 1 {
		t.Error("modifying the snapshot should not affect the peer state")
	}
}

func TestPeerSet(t *testing.T) {
	ps := NewPeerSet([]string{"C", "B"})

	if ps.Size() != 2 {
		t.Fatalf("expected 2 peers, got %d", ps.Size())
	}

	peers := ps.AllPeers()
	if peers[0].Qualifier() != "B" || peers[1].Qualifier() != "C" {
		t.Errorf("expected peers sorted by qualifier, got %s, %s", peers[0].Qualifier(), peers[1].Qualifier())
	}

	b := ps.GetPeer("B")
	if b == nil {
		t.Fatal("expected peer B")
	}
	if ps.AddPeer("B") != b {
		t.Error("AddPeer should return the existing peer")
	}

	ps.AddPeer("D")
	if ps.Size() != 3 {
		t.Errorf("expected 3 peers, got %d", ps.Size())
	}
	ps.RemovePeer("D")
	if ps.GetPeer("D") != nil {
		t.Error("peer D should be removed")
	}
}

func TestPeerSetFailingAndReset(t *testing.T) {
	ps := NewPeerSet([]string{"B", "C"})
	digest := types.HashBytes([]byte("ledger"))

	ps.GetPeer("B").MarkPushed("b", digest, types.VectorClock{0, 0, 0})
	ps.GetPeer("C").MarkFailed("c", errors.New("down"))

	failing := ps.FailingPeers()
	if len(failing) != 1 || failing[0].Qualifier() != "C" {
		t.Errorf("expected only C failing, got %v", failing)
	}

	ps.ResetAll()
	if !ps.GetPeer("B").NeedsPush("b", digest) {
		t.Error("ResetAll should force a push")
	}
}
