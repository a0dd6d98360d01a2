package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/blockberries/distledger/types"
)

// PeerGossipState is a snapshot of what this replica knows about one peer
type PeerGossipState struct {
	Qualifier     string
	Address       string
	LastDigest    types.Hash        // digest of the last successful push
	LastReplicaTS types.VectorClock // replicaTS of the last successful push
	LastSeen      time.Time         // time of the last successful push
	Pushes        uint64
	Failures      uint64
	LastError     string
}

// PeerState tracks gossip exchange with a single peer
type PeerState struct {
	mu sync.RWMutex

	qualifier string
	pgs       PeerGossipState
}

// NewPeerState creates a new PeerState for tracking a peer
func NewPeerState(qualifier string) *PeerState {
	return &PeerState{
		qualifier: qualifier,
		pgs:       PeerGossipState{Qualifier: qualifier},
	}
}

// Qualifier returns the peer's qualifier
func (ps *PeerState) Qualifier() string {
	return ps.qualifier
}

// GetGossipState returns a copy of the peer's gossip state
func (ps *PeerState) GetGossipState() PeerGossipState {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	pgs := ps.pgs
	pgs.LastReplicaTS = ps.pgs.LastReplicaTS.Copy()
	return pgs
}

// NeedsPush reports whether a push of the given state to address would
// carry anything the peer has not already acknowledged
func (ps *PeerState) NeedsPush(address string, digest types.Hash) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.pgs.LastDigest.IsZero() || ps.pgs.Address != address {
		return true
	}
	return !ps.pgs.LastDigest.Equal(digest)
}

// MarkPushed records a successful push
func (ps *PeerState) MarkPushed(address string, digest types.Hash, replicaTS types.VectorClock) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.pgs.Address = address
	ps.pgs.LastDigest = digest
	ps.pgs.LastReplicaTS = replicaTS.Copy()
	ps.pgs.LastSeen = time.Now()
	ps.pgs.Pushes++
	ps.pgs.LastError = ""
}

// ObserveReplicaTS checks a replicaTS the peer sent us against the one we
// last pushed to it. A peer that merged our push always covers it, so a
// gap means the peer lost state and the acknowledged digest is dropped.
// It reports whether the digest was dropped.
func (ps *PeerState) ObserveReplicaTS(replicaTS types.VectorClock) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.pgs.LastDigest.IsZero() || ps.pgs.LastReplicaTS.LessOrEqual(replicaTS) {
		return false
	}
	ps.pgs.LastDigest = types.Hash{}
	return true
}

// MarkFailed records a failed push and forgets the acknowledged digest so
// the next round retries
func (ps *PeerState) MarkFailed(address string, err error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.pgs.Address = address
	ps.pgs.LastDigest = types.Hash{}
	ps.pgs.Failures++
	if err != nil {
		ps.pgs.LastError = err.Error()
	}
}

// Reset forgets the acknowledged digest, forcing the next push
func (ps *PeerState) Reset() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pgs.LastDigest = types.Hash{}
}

// LastSeen returns when the last push to this peer succeeded
func (ps *PeerState) LastSeen() time.Time {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.pgs.LastSeen
}

// Failures returns the number of failed pushes
func (ps *PeerState) Failures() uint64 {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.pgs.Failures
}

// PeerSet manages the gossip state of every peer replica
type PeerSet struct {
	mu    sync.RWMutex
	peers map[string]*PeerState
}

// NewPeerSet creates a PeerSet tracking the given qualifiers
func NewPeerSet(qualifiers []string) *PeerSet {
	ps := &PeerSet{peers: make(map[string]*PeerState, len(qualifiers))}
	for _, q := range qualifiers {
		ps.peers[q] = NewPeerState(q)
	}
	return ps
}

// AddPeer adds a new peer to track
func (ps *PeerSet) AddPeer(qualifier string) *PeerState {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if existing, ok := ps.peers[qualifier]; ok {
		return existing
	}

	peerState := NewPeerState(qualifier)
	ps.peers[qualifier] = peerState
	return peerState
}

// RemovePeer removes a peer
func (ps *PeerSet) RemovePeer(qualifier string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.peers, qualifier)
}

// GetPeer returns a peer's state
func (ps *PeerSet) GetPeer(qualifier string) *PeerState {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.peers[qualifier]
}

// Size returns the number of peers
func (ps *PeerSet) Size() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}

// AllPeers returns all peer states sorted by qualifier
func (ps *PeerSet) AllPeers() []*PeerState {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]*PeerState, 0, len(ps.peers))
	for _, p := range ps.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].qualifier < peers[j].qualifier
	})
	return peers
}

// FailingPeers returns peers whose most recent push failed
func (ps *PeerSet) FailingPeers() []*PeerState {
	var out []*PeerState
	for _, p := range ps.AllPeers() {
		if p.GetGossipState().LastError != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResetAll forces a push to every peer on the next round
func (ps *PeerSet) ResetAll() {
	for _, p := range ps.AllPeers() {
		p.Reset()
	}
}
