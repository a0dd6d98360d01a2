package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/blockberries/distledger/types"
	"github.com/blockberries/distledger/wal"
)

// WAL is an alias for the wal package's WAL interface
type WAL = wal.WAL

// CollisionReporter receives pairs of entries that share a dedup key but
// differ in content. evidence.Pool implements it.
type CollisionReporter interface {
	AddCollision(existing, incoming *types.Operation) error
}

// ReplicaState is the replica state machine. One mutex guards the ledger,
// both clocks and the activation flag.
type ReplicaState struct {
	mu sync.Mutex

	config   *Config
	replicas *types.ReplicaSet
	self     int

	active    bool
	ledger    *Ledger
	replicaTS types.VectorClock

	// WAL for crash recovery; nil while replaying
	wal WAL

	collisions CollisionReporter

	// changed is closed and replaced whenever blocked readers must re-check
	changed chan struct{}

	metrics StateMetrics
}

// StateMetrics counts state machine activity
type StateMetrics struct {
	Accepted   uint64 // entries accepted from clients
	Duplicates uint64 // client requests or gossip entries recognised as duplicates
	Merged     uint64 // entries appended from gossip
	Applied    uint64 // entries applied to balances
	Collisions uint64 // dedup-key collisions reported
	Updates    uint64 // gossip batches ingested
}

// NewReplicaState creates an active replica with the broker seeded.
// A nil WAL disables logging.
func NewReplicaState(config *Config, w WAL, collisions CollisionReporter) (*ReplicaState, error) {
	if err := config.ValidateBasic(); err != nil {
		return nil, err
	}
	return &ReplicaState{
		config:     config,
		replicas:   config.Replicas,
		self:       config.Slot(),
		active:     true,
		ledger:     NewLedger(config.Replicas.Len(), config.BrokerAccount, config.BrokerBalance),
		replicaTS:  config.Replicas.NewClock(),
		wal:        w,
		collisions: collisions,
		changed:    make(chan struct{}),
	}, nil
}

// Qualifier returns this replica's qualifier
func (rs *ReplicaState) Qualifier() string {
	return rs.config.Qualifier
}

// normalizeClock accepts nil as the zero clock and rejects wrong sizes
func (rs *ReplicaState) normalizeClock(vc types.VectorClock) (types.VectorClock, error) {
	if vc == nil {
		return rs.replicas.NewClock(), nil
	}
	if vc.Len() != rs.replicas.Len() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidTimestamp, vc.Len(), rs.replicas.Len())
	}
	return vc, nil
}

// CreateAccount creates account and returns the TS assigned to the creation
func (rs *ReplicaState) CreateAccount(account string, prevTS types.VectorClock) (types.VectorClock, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.active {
		return nil, ErrNotActive
	}
	if account == rs.config.BrokerAccount {
		return nil, ErrBrokerImmutable
	}
	if err := types.ValidateAccountID(account); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if rs.ledger.HasAccount(account) {
		return nil, ErrAccountExists
	}
	prevTS, err := rs.normalizeClock(prevTS)
	if err != nil {
		return nil, err
	}

	op := types.NewCreateAccount(account, prevTS)

	// An earlier creation of the account that has not applied yet
	if existing, ok := rs.ledger.Creation(account); ok {
		rs.metrics.Duplicates++
		return existing.TS.Copy(), nil
	}

	accepted, err := rs.accept(op)
	if err != nil {
		return nil, err
	}
	return accepted.TS.Copy(), nil
}

// TransferTo moves amount from one account to another and returns the
// TS assigned to the transfer
func (rs *ReplicaState) TransferTo(from, to string, amount int64, prevTS types.VectorClock) (types.VectorClock, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.active {
		return nil, ErrNotActive
	}
	fromBalance, ok := rs.ledger.Balance(from)
	if !ok {
		return nil, ErrNoSuchAccount
	}
	if !rs.ledger.HasAccount(to) {
		return nil, ErrNoSuchDestination
	}
	if from == to {
		return nil, ErrSelfTransfer
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromBalance < amount {
		return nil, ErrInsufficientFunds
	}
	prevTS, err := rs.normalizeClock(prevTS)
	if err != nil {
		return nil, err
	}

	op := types.NewTransfer(from, to, amount, prevTS)

	// A retry of a request this replica already accepted
	if existing, ok := rs.ledger.FindRequest(op); ok {
		rs.metrics.Duplicates++
		return existing.TS.Copy(), nil
	}

	accepted, err := rs.accept(op)
	if err != nil {
		return nil, err
	}
	return accepted.TS.Copy(), nil
}

// accept stamps a new client entry with the next counter of this replica's
// slot, logs and appends it, and applies it if stable. Caller holds rs.mu.
func (rs *ReplicaState) accept(op *types.Operation) (*types.Operation, error) {
	accepted := op.Stamp(rs.self, rs.replicaTS.Get(rs.self)+1)

	if rs.wal != nil {
		msg, err := wal.NewAcceptMessage(accepted)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWALWrite, err)
		}
		if err := rs.writeWAL(msg); err != nil {
			return nil, err
		}
	}

	rs.applyAccepted(accepted)
	rs.metrics.Accepted++
	log.Debugw("accepted operation", "replica", rs.config.Qualifier, "op", accepted.String())
	return accepted, nil
}

// applyAccepted is the state change of a locally accepted entry, shared by
// live traffic and WAL replay. Caller holds rs.mu.
func (rs *ReplicaState) applyAccepted(accepted *types.Operation) {
	counter := accepted.TS.Get(rs.self)
	if counter > rs.replicaTS.Get(rs.self) {
		rs.replicaTS.Set(rs.self, counter)
	}
	idx := rs.ledger.Append(accepted)
	if rs.ledger.IsStable(accepted) {
		rs.ledger.Apply(idx)
		rs.metrics.Applied++
	}
}

func (rs *ReplicaState) writeWAL(msg *wal.Message) error {
	var err error
	if rs.config.WALSync {
		err = rs.wal.WriteSync(msg)
	} else {
		err = rs.wal.Write(msg)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWALWrite, err)
	}
	return nil
}

// Balance waits until the replica has applied everything prevTS covers and
// returns valueTS with the balance of account. The wait has no deadline of
// its own; it ends early only when ctx is cancelled.
func (rs *ReplicaState) Balance(ctx context.Context, account string, prevTS types.VectorClock) (types.VectorClock, int64, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.active {
		return nil, 0, ErrNotActive
	}
	prevTS, err := rs.normalizeClock(prevTS)
	if err != nil {
		return nil, 0, err
	}

	for !rs.ledger.Covers(prevTS) {
		changed := rs.changed
		log.Debugw("balance waiting", "replica", rs.config.Qualifier, "account", account,
			"prevTS", prevTS.String(), "valueTS", rs.ledger.valueTS.String())

		rs.mu.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			rs.mu.Lock()
			return nil, 0, ctx.Err()
		}
		rs.mu.Lock()
	}

	balance, ok := rs.ledger.Balance(account)
	if !ok {
		return nil, 0, ErrNoSuchAccount
	}
	return rs.ledger.ValueTS(), balance, nil
}

// Activate switches the replica back on
func (rs *ReplicaState) Activate() error {
	return rs.setActive(true)
}

// Deactivate makes client and gossip operations fail with ErrNotActive
func (rs *ReplicaState) Deactivate() error {
	return rs.setActive(false)
}

func (rs *ReplicaState) setActive(active bool) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.active == active {
		if active {
			return ErrAlreadyActive
		}
		return ErrAlreadyInactive
	}
	if rs.wal != nil {
		if err := rs.writeWAL(wal.NewActivationMessage(active)); err != nil {
			return err
		}
	}
	rs.active = active
	log.Infow("activation changed", "replica", rs.config.Qualifier, "active", active)
	return nil
}

// IsActive reports the activation flag
func (rs *ReplicaState) IsActive() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.active
}

// GetLedgerState returns a point-in-time copy of the ledger
func (rs *ReplicaState) GetLedgerState() []*types.Operation {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return copyOps(rs.ledger.Entries())
}

// PropagateState returns the gossip payload: a ledger copy and replicaTS
func (rs *ReplicaState) PropagateState() ([]*types.Operation, types.VectorClock) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return copyOps(rs.ledger.Entries()), rs.replicaTS.Copy()
}

// Update ingests a peer's ledger and replicaTS: new entries are appended,
// replicaTS is merged, every entry that becomes stable is applied and
// blocked readers are woken.
func (rs *ReplicaState) Update(incoming []*types.Operation, incomingReplicaTS types.VectorClock) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.active {
		return ErrNotActive
	}
	incomingReplicaTS, err := rs.normalizeClock(incomingReplicaTS)
	if err != nil {
		return err
	}

	fresh := rs.filterFresh(incoming)

	// a push that adds no entries and no replicaTS slot is not logged
	if rs.wal != nil && (len(fresh) > 0 || !incomingReplicaTS.LessOrEqual(rs.replicaTS)) {
		if err := rs.writeWAL(wal.NewMergeMessage(fresh, incomingReplicaTS)); err != nil {
			return err
		}
	}

	applied := rs.applyMerge(fresh, incomingReplicaTS)
	rs.metrics.Updates++
	if len(fresh) > 0 || applied > 0 {
		log.Infow("merged gossip", "replica", rs.config.Qualifier, "new", len(fresh),
			"applied", applied, "valueTS", rs.ledger.valueTS.String())
	}

	rs.notifyLocked()
	return nil
}

// filterFresh returns the incoming entries not yet represented in the
// ledger. An entry that shares a dedup key and TS with a local entry but
// differs in content is reported and dropped. Caller holds rs.mu.
func (rs *ReplicaState) filterFresh(incoming []*types.Operation) []*types.Operation {
	var (
		fresh []*types.Operation
		seen  = make(map[string][]*types.Operation)
	)

	for _, op := range incoming {
		if op == nil {
			continue
		}
		if err := op.Validate(rs.replicas.Len()); err != nil {
			log.Warnw("dropping malformed gossip entry", "replica", rs.config.Qualifier, "err", err)
			continue
		}

		candidates := append(rs.ledger.WithKey(op), seen[op.DedupKey()]...)
		if slices.ContainsFunc(candidates, op.Equal) {
			rs.metrics.Duplicates++
			continue
		}

		conflict := false
		for _, existing := range candidates {
			rs.reportCollision(existing, op)
			if existing.TS.Equal(op.TS) {
				conflict = true
			}
		}
		if conflict {
			continue
		}

		op = op.Copy()
		fresh = append(fresh, op)
		seen[op.DedupKey()] = append(seen[op.DedupKey()], op)
	}
	return fresh
}

func (rs *ReplicaState) reportCollision(existing, incoming *types.Operation) {
	rs.metrics.Collisions++
	if rs.collisions == nil {
		return
	}
	if err := rs.collisions.AddCollision(existing, incoming); err != nil {
		log.Debugw("collision not recorded", "err", err)
	}
}

// applyMerge appends fresh entries, merges replicaTS and runs the
// stabilization loop. Shared by live gossip and WAL replay. Caller holds rs.mu.
func (rs *ReplicaState) applyMerge(fresh []*types.Operation, incomingReplicaTS types.VectorClock) int {
	for _, op := range fresh {
		rs.ledger.Append(op)
	}
	rs.metrics.Merged += uint64(len(fresh))
	rs.replicaTS.Merge(incomingReplicaTS)
	return rs.stabilize()
}

// stabilize applies stable entries until a pass finds none. Each pass is
// applied in CausalCompare order. Caller holds rs.mu.
func (rs *ReplicaState) stabilize() int {
	total := 0
	for {
		ready := rs.ledger.Ready()
		if len(ready) == 0 {
			return total
		}
		slices.SortFunc(ready, func(a, b int) int {
			return types.CausalCompare(rs.ledger.Entry(a), rs.ledger.Entry(b))
		})
		for _, idx := range ready {
			rs.ledger.Apply(idx)
		}
		total += len(ready)
		rs.metrics.Applied += uint64(len(ready))
	}
}

// NotifyReaders wakes every goroutine blocked in Balance so it re-checks
// its condition
func (rs *ReplicaState) NotifyReaders() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.notifyLocked()
}

func (rs *ReplicaState) notifyLocked() {
	close(rs.changed)
	rs.changed = make(chan struct{})
}

// ValueTS returns a copy of valueTS
func (rs *ReplicaState) ValueTS() types.VectorClock {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.ledger.ValueTS()
}

// ReplicaTS returns a copy of replicaTS
func (rs *ReplicaState) ReplicaTS() types.VectorClock {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.replicaTS.Copy()
}

// Balances returns a copy of all balances
func (rs *ReplicaState) Balances() types.Balances {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.ledger.Balances()
}

// Executed returns copies of the applied entries in apply order
func (rs *ReplicaState) Executed() []*types.Operation {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return copyOps(rs.ledger.Executed())
}

// Digest returns the SHA3 digest of the ledger and replicaTS
func (rs *ReplicaState) Digest() types.Hash {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return types.LedgerDigest(rs.ledger.entries, rs.replicaTS)
}

// Metrics returns a copy of the state counters
func (rs *ReplicaState) Metrics() StateMetrics {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.metrics
}

func copyOps(ops []*types.Operation) []*types.Operation {
	out := make([]*types.Operation, len(ops))
	for i, op := range ops {
		out[i] = op.Copy()
	}
	return out
}
