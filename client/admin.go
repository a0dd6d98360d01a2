package client

import (
	"context"

	"github.com/blockberries/distledger/engine"
	"github.com/blockberries/distledger/evidence"
	"github.com/blockberries/distledger/rpc"
	"github.com/blockberries/distledger/types"
)

// AdminService runs operator commands against replicas by qualifier
type AdminService struct {
	*binder
	rpc *rpc.Client
}

// NewAdminService creates an admin client for the replicas of service
func NewAdminService(dir engine.Directory, service string) *AdminService {
	return &AdminService{
		binder: newBinder(dir, service),
		rpc:    rpc.NewClient(),
	}
}

// Activate switches the replica on
func (a *AdminService) Activate(ctx context.Context, qualifier string) error {
	address, err := a.Address(ctx, qualifier)
	if err != nil {
		return err
	}
	return a.rpc.Activate(ctx, address)
}

// Deactivate switches the replica off
func (a *AdminService) Deactivate(ctx context.Context, qualifier string) error {
	address, err := a.Address(ctx, qualifier)
	if err != nil {
		return err
	}
	return a.rpc.Deactivate(ctx, address)
}

// Gossip makes the replica push its ledger to its peers now
func (a *AdminService) Gossip(ctx context.Context, qualifier string) (*rpc.GossipResponse, error) {
	address, err := a.Address(ctx, qualifier)
	if err != nil {
		return nil, err
	}
	return a.rpc.Gossip(ctx, address)
}

// GetLedgerState fetches the replica's ledger
func (a *AdminService) GetLedgerState(ctx context.Context, qualifier string) ([]*types.Operation, error) {
	address, err := a.Address(ctx, qualifier)
	if err != nil {
		return nil, err
	}
	return a.rpc.GetLedgerState(ctx, address)
}

// Collisions fetches the dedup-key collisions the replica recorded
func (a *AdminService) Collisions(ctx context.Context, qualifier string) ([]*evidence.Collision, error) {
	address, err := a.Address(ctx, qualifier)
	if err != nil {
		return nil, err
	}
	return a.rpc.Collisions(ctx, address)
}
