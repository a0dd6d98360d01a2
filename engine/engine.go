package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	logging "github.com/ipfs/go-log"

	"github.com/blockberries/distledger/evidence"
	"github.com/blockberries/distledger/types"
	"github.com/blockberries/distledger/wal"
)

var log = logging.Logger("engine")

// Transport pushes this replica's gossip payload to a peer. from is the
// sender's qualifier.
type Transport interface {
	PushGossip(ctx context.Context, address, from string, ops []*types.Operation, replicaTS types.VectorClock) error
}

// Directory resolves a replica qualifier to a network address. A missing
// registration is ok=false with a nil error.
type Directory interface {
	Lookup(ctx context.Context, service, qualifier string) (address string, ok bool, err error)
}

// Engine runs one ledger replica: the state machine, its WAL, the
// collision pool and periodic gossip to the other replicas
type Engine struct {
	mu sync.RWMutex

	// Configuration
	config *Config

	// Components
	state     *ReplicaState
	wal       wal.WAL
	evidence  *evidence.Pool
	ticker    *GossipTicker
	peers     *PeerSet
	transport Transport
	directory Directory

	// serializes gossip rounds
	gossipMu sync.Mutex

	// State
	started  bool
	replayed bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	gossipRounds   uint64
	gossipPushes   uint64
	gossipSkipped  uint64
	gossipFailures uint64
}

// NewEngine creates a new replica engine. w may be nil to run without a
// WAL; transport and directory may be nil for a replica that never gossips.
func NewEngine(config *Config, w wal.WAL, transport Transport, directory Directory) (*Engine, error) {
	pool := evidence.NewPool(evidence.DefaultConfig())
	state, err := NewReplicaState(config, w, pool)
	if err != nil {
		return nil, err
	}
	return &Engine{
		config:    config,
		state:     state,
		wal:       w,
		evidence:  pool,
		peers:     NewPeerSet(config.Replicas.Others(config.Qualifier)),
		transport: transport,
		directory: directory,
	}, nil
}

// Start replays the WAL, opens it for writing and starts periodic gossip
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}

	if e.wal != nil {
		// the state already holds the log after the first start
		if group := e.wal.Group(); group != nil && !e.replayed {
			if _, err := e.state.ReplayWAL(group.Dir); err != nil {
				return err
			}
		}
		e.replayed = true
		if err := e.wal.Start(); err != nil {
			return fmt.Errorf("failed to start WAL: %w", err)
		}
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.ticker = NewGossipTicker(e.config.GossipInterval)
	e.ticker.Start()
	e.wg.Add(1)
	go e.gossipLoop(e.ctx, e.ticker)

	e.started = true
	log.Infow("replica started", "qualifier", e.config.Qualifier, "replicas", e.config.Replicas.String(),
		"gossip_interval", e.config.GossipInterval.String())
	return nil
}

// Stop stops gossip and closes the WAL
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.started = false
	e.cancel()
	e.ticker.Stop()
	e.mu.Unlock()

	// the loop may be inside Gossip, which takes e.mu
	e.wg.Wait()

	if e.wal != nil {
		if err := e.wal.Stop(); err != nil {
			return fmt.Errorf("failed to stop WAL: %w", err)
		}
	}

	log.Infow("replica stopped", "qualifier", e.config.Qualifier)
	return nil
}

func (e *Engine) gossipLoop(ctx context.Context, ticker *GossipTicker) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.Chan():
			if _, err := e.gossip(ctx, true); err != nil {
				log.Debugw("periodic gossip skipped", "round", tick.Round, "err", err)
			}
		}
	}
}

// GossipResult summarises one gossip round
type GossipResult struct {
	Pushed  []string
	Skipped []string
	Failed  map[string]error
}

// Gossip pushes the ledger and replicaTS to every other replica found in
// the directory, then wakes blocked readers. Per-peer failures are
// recorded in the result and in PeerState; they do not fail the round.
func (e *Engine) Gossip(ctx context.Context) (*GossipResult, error) {
	return e.gossip(ctx, false)
}

// gossip runs one round. Periodic rounds pass skipAcknowledged to leave
// out peers that already acknowledged the current state.
func (e *Engine) gossip(ctx context.Context, skipAcknowledged bool) (*GossipResult, error) {
	e.mu.RLock()
	started := e.started
	transport, directory := e.transport, e.directory
	e.mu.RUnlock()

	if !started {
		return nil, ErrNotStarted
	}
	if transport == nil || directory == nil {
		return nil, ErrNoTransport
	}

	e.gossipMu.Lock()
	defer e.gossipMu.Unlock()

	ops, replicaTS := e.state.PropagateState()
	digest := types.LedgerDigest(ops, replicaTS)
	result := &GossipResult{Failed: make(map[string]error)}

	for _, q := range e.config.Replicas.Others(e.config.Qualifier) {
		peer := e.peers.AddPeer(q)

		address, ok, err := directory.Lookup(ctx, e.config.ServiceName, q)
		if err == nil && !ok {
			err = fmt.Errorf("%w: %s/%s", ErrPeerNotFound, e.config.ServiceName, q)
		}
		if err != nil {
			e.recordFailure(peer, result, "", err)
			continue
		}

		if skipAcknowledged && !peer.NeedsPush(address, digest) {
			result.Skipped = append(result.Skipped, q)
			atomic.AddUint64(&e.gossipSkipped, 1)
			continue
		}

		if err := transport.PushGossip(ctx, address, e.config.Qualifier, ops, replicaTS); err != nil {
			e.recordFailure(peer, result, address, err)
			continue
		}
		peer.MarkPushed(address, digest, replicaTS)
		result.Pushed = append(result.Pushed, q)
		atomic.AddUint64(&e.gossipPushes, 1)
	}

	atomic.AddUint64(&e.gossipRounds, 1)
	e.state.NotifyReaders()

	log.Debugw("gossip round", "qualifier", e.config.Qualifier, "entries", len(ops),
		"digest", digest.Short(), "pushed", len(result.Pushed), "skipped", len(result.Skipped),
		"failed", len(result.Failed))
	return result, nil
}

func (e *Engine) recordFailure(peer *PeerState, result *GossipResult, address string, err error) {
	peer.MarkFailed(address, err)
	result.Failed[peer.Qualifier()] = err
	atomic.AddUint64(&e.gossipFailures, 1)
	log.Warnw("gossip push failed", "qualifier", e.config.Qualifier, "peer", peer.Qualifier(),
		"address", address, "err", err)
}

// ReceiveGossip ingests a push from the replica qualified by from, which
// may be empty when the sender is unknown
func (e *Engine) ReceiveGossip(from string, ops []*types.Operation, replicaTS types.VectorClock) error {
	if err := e.checkStarted(); err != nil {
		return err
	}
	if err := e.state.Update(ops, replicaTS); err != nil {
		return err
	}
	if peer := e.peers.GetPeer(from); peer != nil && peer.ObserveReplicaTS(replicaTS) {
		log.Infow("peer lost acknowledged state", "qualifier", e.config.Qualifier, "peer", from,
			"replica_ts", replicaTS.String())
	}
	return nil
}

// CreateAccount creates an account and returns the TS of the creation
func (e *Engine) CreateAccount(account string, prevTS types.VectorClock) (types.VectorClock, error) {
	if err := e.checkStarted(); err != nil {
		return nil, err
	}
	return e.state.CreateAccount(account, prevTS)
}

// TransferTo moves amount between accounts and returns the TS of the transfer
func (e *Engine) TransferTo(from, to string, amount int64, prevTS types.VectorClock) (types.VectorClock, error) {
	if err := e.checkStarted(); err != nil {
		return nil, err
	}
	return e.state.TransferTo(from, to, amount, prevTS)
}

// Balance blocks until prevTS is covered, then returns valueTS and the balance
func (e *Engine) Balance(ctx context.Context, account string, prevTS types.VectorClock) (types.VectorClock, int64, error) {
	if err := e.checkStarted(); err != nil {
		return nil, 0, err
	}
	return e.state.Balance(ctx, account, prevTS)
}

// Activate switches the replica on
func (e *Engine) Activate() error {
	if err := e.checkStarted(); err != nil {
		return err
	}
	return e.state.Activate()
}

// Deactivate switches the replica off
func (e *Engine) Deactivate() error {
	if err := e.checkStarted(); err != nil {
		return err
	}
	return e.state.Deactivate()
}

// GetLedgerState returns a copy of the ledger
func (e *Engine) GetLedgerState() []*types.Operation {
	return e.state.GetLedgerState()
}

// Collisions returns the recorded dedup-key collisions
func (e *Engine) Collisions() []*evidence.Collision {
	return e.evidence.List()
}

// State returns the replica state machine
func (e *Engine) State() *ReplicaState {
	return e.state
}

// Peers returns the gossip peer set
func (e *Engine) Peers() *PeerSet {
	return e.peers
}

// Qualifier returns this replica's qualifier
func (e *Engine) Qualifier() string {
	return e.config.Qualifier
}

// ServiceName returns the directory service name
func (e *Engine) ServiceName() string {
	return e.config.ServiceName
}

func (e *Engine) checkStarted() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started {
		return ErrNotStarted
	}
	return nil
}

// --- Metrics and Monitoring ---

// Metrics holds replica metrics
type Metrics struct {
	Qualifier      string
	Active         bool
	LedgerSize     int
	Executed       int
	ValueTS        types.VectorClock
	ReplicaTS      types.VectorClock
	Accepted       uint64
	Duplicates     uint64
	Merged         uint64
	Applied        uint64
	Updates        uint64
	Collisions     uint64
	GossipRounds   uint64
	GossipPushes   uint64
	GossipSkipped  uint64
	GossipFailures uint64
	DroppedTicks   uint64
}

// GetMetrics returns current replica metrics
func (e *Engine) GetMetrics() (*Metrics, error) {
	if err := e.checkStarted(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	ticker := e.ticker
	e.mu.RUnlock()

	sm := e.state.Metrics()
	return &Metrics{
		Qualifier:      e.config.Qualifier,
		Active:         e.state.IsActive(),
		LedgerSize:     len(e.state.GetLedgerState()),
		Executed:       len(e.state.Executed()),
		ValueTS:        e.state.ValueTS(),
		ReplicaTS:      e.state.ReplicaTS(),
		Accepted:       sm.Accepted,
		Duplicates:     sm.Duplicates,
		Merged:         sm.Merged,
		Applied:        sm.Applied,
		Updates:        sm.Updates,
		Collisions:     sm.Collisions,
		GossipRounds:   atomic.LoadUint64(&e.gossipRounds),
		GossipPushes:   atomic.LoadUint64(&e.gossipPushes),
		GossipSkipped:  atomic.LoadUint64(&e.gossipSkipped),
		GossipFailures: atomic.LoadUint64(&e.gossipFailures),
		DroppedTicks:   ticker.DroppedTicks(),
	}, nil
}
