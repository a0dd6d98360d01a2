package client

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/blockberries/distledger/engine"
	"github.com/blockberries/distledger/rpc"
	"github.com/blockberries/distledger/types"
)

// UserService issues ledger operations on behalf of one user session. It
// keeps the session's causal context: every TS or valueTS a replica
// returns is merged into prevTS and sent with the next request.
type UserService struct {
	*binder

	rpc     *rpc.Client
	session string

	mu     sync.Mutex
	prevTS types.VectorClock
}

// NewUserService creates a session against the replicas of service in
// replicas, resolving each qualifier through dir
func NewUserService(dir engine.Directory, service string, replicas *types.ReplicaSet) *UserService {
	return &UserService{
		binder:  newBinder(dir, service),
		rpc:     rpc.NewClient(),
		session: uuid.NewString(),
		prevTS:  replicas.NewClock(),
	}
}

// PrevTS returns a copy of the session's causal context
func (s *UserService) PrevTS() types.VectorClock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prevTS.Copy()
}

// Session returns the session id attached to this service's log lines
func (s *UserService) Session() string {
	return s.session
}

// CreateAccount creates account on the replica bound to qualifier
func (s *UserService) CreateAccount(ctx context.Context, qualifier, account string) error {
	address, err := s.Address(ctx, qualifier)
	if err != nil {
		return err
	}
	ts, err := s.rpc.CreateAccount(ctx, address, account, s.PrevTS())
	if err != nil {
		return err
	}
	s.observe(ts)
	log.Debugw("account created", "session", s.session, "qualifier", qualifier, "account", account,
		"prevTS", s.PrevTS().String())
	return nil
}

// Transfer moves amount between accounts on the replica bound to qualifier
func (s *UserService) Transfer(ctx context.Context, qualifier, from, to string, amount int64) error {
	address, err := s.Address(ctx, qualifier)
	if err != nil {
		return err
	}
	ts, err := s.rpc.TransferTo(ctx, address, from, to, amount, s.PrevTS())
	if err != nil {
		return err
	}
	s.observe(ts)
	log.Debugw("transfer accepted", "session", s.session, "qualifier", qualifier, "from", from,
		"to", to, "amount", amount, "prevTS", s.PrevTS().String())
	return nil
}

// Balance reads account on the replica bound to qualifier. The call
// blocks until that replica has seen everything this session has.
func (s *UserService) Balance(ctx context.Context, qualifier, account string) (int64, error) {
	address, err := s.Address(ctx, qualifier)
	if err != nil {
		return 0, err
	}
	valueTS, value, err := s.rpc.Balance(ctx, address, account, s.PrevTS())
	if err != nil {
		return 0, err
	}
	s.observe(valueTS)
	return value, nil
}

func (s *UserService) observe(ts types.VectorClock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prevTS.Merge(ts)
}
