package engine

import (
	"github.com/blockberries/distledger/types"
)

// Ledger is the per-replica store: every known entry in arrival order, the
// subset applied to balances, the balances themselves and valueTS.
// It is not safe for concurrent use; ReplicaState serializes access.
type Ledger struct {
	entries  []*types.Operation
	executed []int  // ledger indexes in apply order
	applied  []bool // applied[i] reports entries[i] is in executed

	balances map[string]int64
	valueTS  types.VectorClock

	byKey     map[string][]int // dedup key -> ledger indexes
	creations map[string]int   // account -> index of its first creation entry
}

// NewLedger creates an empty ledger for n replicas with the broker seeded
func NewLedger(n int, broker string, brokerBalance int64) *Ledger {
	return &Ledger{
		balances:  map[string]int64{broker: brokerBalance},
		valueTS:   types.NewVectorClock(n),
		byKey:     make(map[string][]int),
		creations: make(map[string]int),
	}
}

// Len returns the number of entries
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Append adds an accepted entry and returns its index
func (l *Ledger) Append(op *types.Operation) int {
	idx := len(l.entries)
	l.entries = append(l.entries, op)
	l.applied = append(l.applied, false)

	key := op.DedupKey()
	l.byKey[key] = append(l.byKey[key], idx)
	if op.Type == types.OpCreateAccount {
		if _, ok := l.creations[op.Account]; !ok {
			l.creations[op.Account] = idx
		}
	}
	return idx
}

// Entry returns the entry at idx
func (l *Ledger) Entry(idx int) *types.Operation {
	return l.entries[idx]
}

// WithKey returns the entries sharing op's dedup key
func (l *Ledger) WithKey(op *types.Operation) []*types.Operation {
	idxs := l.byKey[op.DedupKey()]
	out := make([]*types.Operation, len(idxs))
	for i, idx := range idxs {
		out[i] = l.entries[idx]
	}
	return out
}

// FindRequest returns an entry carrying the same client request as op
func (l *Ledger) FindRequest(op *types.Operation) (*types.Operation, bool) {
	for _, idx := range l.byKey[op.DedupKey()] {
		if l.entries[idx].SameRequest(op) {
			return l.entries[idx], true
		}
	}
	return nil, false
}

// Creation returns the first creation entry for account
func (l *Ledger) Creation(account string) (*types.Operation, bool) {
	idx, ok := l.creations[account]
	if !ok {
		return nil, false
	}
	return l.entries[idx], true
}

// HasAccount reports whether account has a balance entry
func (l *Ledger) HasAccount(account string) bool {
	_, ok := l.balances[account]
	return ok
}

// Balance returns the balance of account
func (l *Ledger) Balance(account string) (int64, bool) {
	b, ok := l.balances[account]
	return b, ok
}

// IsStable reports prevTS <= valueTS
func (l *Ledger) IsStable(op *types.Operation) bool {
	return l.Covers(op.PrevTS)
}

// Covers reports vc <= valueTS
func (l *Ledger) Covers(vc types.VectorClock) bool {
	return vc.LessOrEqual(l.valueTS)
}

// IsApplied reports whether the entry at idx has been executed
func (l *Ledger) IsApplied(idx int) bool {
	return l.applied[idx]
}

// ready reports whether an unapplied entry can be applied now: it is
// stable and every account it touches already has a balance.
func (l *Ledger) ready(idx int) bool {
	if l.applied[idx] {
		return false
	}
	op := l.entries[idx]
	if !l.IsStable(op) {
		return false
	}
	if op.Type == types.OpTransfer {
		return l.HasAccount(op.Account) && l.HasAccount(op.Destination)
	}
	return true
}

// Ready returns the indexes of all entries that can be applied now
func (l *Ledger) Ready() []int {
	var out []int
	for idx := range l.entries {
		if l.ready(idx) {
			out = append(out, idx)
		}
	}
	return out
}

// Apply executes the entry at idx: its effect on balances, membership in
// the executed set and the merge of its TS into valueTS. Applying an
// already executed entry is a no-op.
func (l *Ledger) Apply(idx int) {
	if l.applied[idx] {
		return
	}
	op := l.entries[idx]

	switch op.Type {
	case types.OpCreateAccount:
		// a concurrent creation of the same account may have applied first
		if _, ok := l.balances[op.Account]; !ok {
			l.balances[op.Account] = 0
		}
	case types.OpTransfer:
		l.balances[op.Account] -= op.Amount
		l.balances[op.Destination] += op.Amount
	}

	l.applied[idx] = true
	l.executed = append(l.executed, idx)
	l.valueTS.Merge(op.TS)
}

// ValueTS returns a copy of valueTS
func (l *Ledger) ValueTS() types.VectorClock {
	return l.valueTS.Copy()
}

// Entries returns a copy of the entry sequence. Entries are immutable and
// shared.
func (l *Ledger) Entries() []*types.Operation {
	out := make([]*types.Operation, len(l.entries))
	copy(out, l.entries)
	return out
}

// Executed returns the applied entries in apply order
func (l *Ledger) Executed() []*types.Operation {
	out := make([]*types.Operation, len(l.executed))
	for i, idx := range l.executed {
		out[i] = l.entries[idx]
	}
	return out
}

// Balances returns a copy of all balances
func (l *Ledger) Balances() types.Balances {
	out := make(types.Balances, len(l.balances))
	for k, v := range l.balances {
		out[k] = v
	}
	return out
}
