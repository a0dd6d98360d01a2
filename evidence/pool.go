package evidence

import (
	"bytes"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/blockberries/distledger/types"
)

// Errors
var (
	ErrInvalidEvidence   = errors.New("invalid evidence")
	ErrDuplicateEvidence = errors.New("duplicate evidence")
	ErrEvidenceNotFound  = errors.New("evidence not found")
	ErrSameContent       = errors.New("entries are identical, not a collision")
	ErrDifferentKey      = errors.New("entries have different dedup keys")
)

// Kind classifies a collision
type Kind uint8

const (
	// KindSharedContext: two requests issued from the same causal context
	// were stamped differently. Both entries are kept in the ledger.
	KindSharedContext Kind = iota + 1
	// KindConflict: same prevTS and TS but different content. The incoming
	// entry was dropped.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindSharedContext:
		return "shared-context"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// MaxEntriesLimit caps Config.MaxEntries
const MaxEntriesLimit = 100000

// Config holds evidence pool configuration
type Config struct {
	// MaxEntries bounds the pool; the oldest collision is evicted first
	MaxEntries int
	// MaxAge is the age after which Prune drops a collision; 0 keeps forever
	MaxAge time.Duration
}

// DefaultConfig returns default evidence pool configuration
func DefaultConfig() Config {
	return Config{
		MaxEntries: 1024,
		MaxAge:     24 * time.Hour,
	}
}

// Collision is a pair of ledger entries sharing a dedup key
type Collision struct {
	ID         string           `json:"id"`
	Kind       Kind             `json:"-"`
	KindName   string           `json:"kind"`
	Existing   *types.Operation `json:"existing"`
	Incoming   *types.Operation `json:"incoming"`
	DetectedAt time.Time        `json:"detectedAt"`
}

// Pool records dedup-key collisions observed while merging gossip
type Pool struct {
	mu     sync.RWMutex
	config Config

	// in arrival order, oldest first
	entries []*Collision
	byID    map[string]*Collision

	evicted uint64
	now     func() time.Time
}

// NewPool creates a new evidence pool
func NewPool(config Config) *Pool {
	if config.MaxEntries <= 0 || config.MaxEntries > MaxEntriesLimit {
		config.MaxEntries = DefaultConfig().MaxEntries
	}
	return &Pool{
		config: config,
		byID:   make(map[string]*Collision),
		now:    time.Now,
	}
}

// AddCollision records that incoming shares existing's dedup key. The pair
// is unordered: reporting (b, a) after (a, b) is a duplicate.
func (p *Pool) AddCollision(existing, incoming *types.Operation) error {
	if existing == nil || incoming == nil {
		return ErrInvalidEvidence
	}
	if existing.DedupKey() != incoming.DedupKey() {
		return ErrDifferentKey
	}
	if existing.Equal(incoming) {
		return ErrSameContent
	}

	kind := KindSharedContext
	if existing.TS.Equal(incoming.TS) {
		kind = KindConflict
	}

	id := collisionID(existing, incoming)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byID[id]; ok {
		return ErrDuplicateEvidence
	}

	c := &Collision{
		ID:         id,
		Kind:       kind,
		KindName:   kind.String(),
		Existing:   existing.Copy(),
		Incoming:   incoming.Copy(),
		DetectedAt: p.now(),
	}

	if len(p.entries) >= p.config.MaxEntries {
		oldest := p.entries[0]
		delete(p.byID, oldest.ID)
		p.entries = p.entries[1:]
		p.evicted++
	}
	p.entries = append(p.entries, c)
	p.byID[id] = c
	return nil
}

// Get returns the collision with the given id
func (p *Pool) Get(id string) (*Collision, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.byID[id]
	if !ok {
		return nil, ErrEvidenceNotFound
	}
	return copyCollision(c), nil
}

// List returns copies of all collisions, oldest first
func (p *Pool) List() []*Collision {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Collision, len(p.entries))
	for i, c := range p.entries {
		out[i] = copyCollision(c)
	}
	return out
}

// Size returns the number of recorded collisions
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Evicted returns how many collisions were dropped to respect MaxEntries
func (p *Pool) Evicted() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.evicted
}

// Prune drops collisions older than MaxAge and returns how many were removed
func (p *Pool) Prune() int {
	if p.config.MaxAge <= 0 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.config.MaxAge)
	var kept []*Collision
	removed := 0
	for _, c := range p.entries {
		if c.DetectedAt.Before(cutoff) {
			delete(p.byID, c.ID)
			removed++
			continue
		}
		kept = append(kept, c)
	}
	p.entries = kept
	return removed
}

func copyCollision(c *Collision) *Collision {
	out := *c
	out.Existing = c.Existing.Copy()
	out.Incoming = c.Incoming.Copy()
	return &out
}

// collisionID hashes both encodings in a fixed order
func collisionID(a, b *types.Operation) string {
	ea, _ := a.MarshalBinary()
	eb, _ := b.MarshalBinary()
	if bytes.Compare(ea, eb) > 0 {
		ea, eb = eb, ea
	}

	h := sha3.New256()
	h.Write(ea)
	h.Write([]byte{0})
	h.Write(eb)
	return hex.EncodeToString(h.Sum(nil)[:16])
}
