package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blockberries/distledger/engine"
	"github.com/blockberries/distledger/naming"
	"github.com/blockberries/distledger/rpc"
	"github.com/blockberries/distledger/types"
)

const service = "DistLedger"

// startReplica runs an engine for qualifier behind an httptest server and
// registers it in dir
func startReplica(t *testing.T, dir *naming.StaticDirectory, qualifier string) *httptest.Server {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Qualifier = qualifier
	cfg.ServiceName = service
	cfg.GossipInterval = 0

	e, err := engine.NewEngine(cfg, nil, rpc.NewClient(), dir)
	if err != nil {
		t.Fatalf("failed to create engine %s: %v", qualifier, err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("failed to start engine %s: %v", qualifier, err)
	}
	srv := httptest.NewServer(rpc.NewServer(e).Router())
	t.Cleanup(func() {
		srv.Close()
		e.Stop()
	})
	if err := dir.Register(context.Background(), service, qualifier, srv.URL); err != nil {
		t.Fatalf("failed to register %s: %v", qualifier, err)
	}
	return srv
}

func TestUserServiceFoldsTimestamps(t *testing.T) {
	dir := naming.NewStaticDirectory()
	startReplica(t, dir, "A")
	ctx := context.Background()

	user := NewUserService(dir, service, types.DefaultReplicaSet())
	if !user.PrevTS().Equal(types.VectorClock{0, 0, 0}) {
		t.Fatalf("expected zero prevTS, got %s", user.PrevTS())
	}

	if err := user.CreateAccount(ctx, "A", "alice"); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := user.Transfer(ctx, "A", "broker", "alice", 100); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if !user.PrevTS().Equal(types.VectorClock{2, 0, 0}) {
		t.Errorf("expected prevTS [2,0,0], got %s", user.PrevTS())
	}

	value, err := user.Balance(ctx, "A", "alice")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if value != 100 {
		t.Errorf("expected 100, got %d", value)
	}

	if err := user.Transfer(ctx, "A", "alice", "broker", 500); !errors.Is(err, engine.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	// rejected requests leave the causal context alone
	if !user.PrevTS().Equal(types.VectorClock{2, 0, 0}) {
		t.Errorf("expected prevTS unchanged, got %s", user.PrevTS())
	}
}

func TestCausalReadWaitsForGossip(t *testing.T) {
	dir := naming.NewStaticDirectory()
	startReplica(t, dir, "A")
	startReplica(t, dir, "B")
	ctx := context.Background()

	user := NewUserService(dir, service, types.DefaultReplicaSet())
	admin := NewAdminService(dir, service)

	if err := user.CreateAccount(ctx, "A", "alice"); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := user.Transfer(ctx, "A", "broker", "alice", 40); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	type result struct {
		value int64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := user.Balance(ctx, "B", "alice")
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		t.Fatalf("read on B returned before gossip: %d, %v", r.value, r.err)
	case <-time.After(100 * time.Millisecond):
	}

	if _, err := admin.Gossip(ctx, "A"); err != nil {
		t.Fatalf("Gossip failed: %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Balance failed: %v", r.err)
		}
		if r.value != 40 {
			t.Errorf("expected 40, got %d", r.value)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("read on B still blocked after gossip")
	}
}

func TestBindKeepsPriorBinding(t *testing.T) {
	dir := naming.NewStaticDirectory()
	ctx := context.Background()
	dir.Register(ctx, service, "A", "10.0.0.1:2001")

	user := NewUserService(dir, service, types.DefaultReplicaSet())
	address, err := user.Bind(ctx, "A")
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if address != "10.0.0.1:2001" {
		t.Errorf("unexpected address %q", address)
	}

	dir.Delete(ctx, service, "A", "")
	address, err = user.Bind(ctx, "A")
	if err != nil {
		t.Fatalf("Bind after delete failed: %v", err)
	}
	if address != "10.0.0.1:2001" {
		t.Errorf("expected prior binding kept, got %q", address)
	}

	dir.Register(ctx, service, "A", "10.0.0.2:2001")
	address, _ = user.Bind(ctx, "A")
	if address != "10.0.0.2:2001" {
		t.Errorf("expected rebind to new address, got %q", address)
	}

	if _, err := user.Bind(ctx, "C"); !errors.Is(err, ErrNotBound) {
		t.Errorf("expected ErrNotBound, got %v", err)
	}
	if err := user.CreateAccount(ctx, "C", "alice"); !errors.Is(err, ErrNotBound) {
		t.Errorf("expected ErrNotBound, got %v", err)
	}
}

func TestAdminService(t *testing.T) {
	dir := naming.NewStaticDirectory()
	startReplica(t, dir, "A")
	ctx := context.Background()

	user := NewUserService(dir, service, types.DefaultReplicaSet())
	admin := NewAdminService(dir, service)

	if err := admin.Deactivate(ctx, "A"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if err := admin.Deactivate(ctx, "A"); !errors.Is(err, engine.ErrAlreadyInactive) {
		t.Errorf("expected ErrAlreadyInactive, got %v", err)
	}
	if err := user.CreateAccount(ctx, "A", "alice"); !errors.Is(err, engine.ErrNotActive) {
		t.Errorf("expected ErrNotActive, got %v", err)
	}
	if err := admin.Activate(ctx, "A"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if err := user.CreateAccount(ctx, "A", "alice"); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	ops, err := admin.GetLedgerState(ctx, "A")
	if err != nil {
		t.Fatalf("GetLedgerState failed: %v", err)
	}
	if len(ops) != 1 || ops[0].Account != "alice" {
		t.Errorf("unexpected ledger %v", ops)
	}

	collisions, err := admin.Collisions(ctx, "A")
	if err != nil {
		t.Fatalf("Collisions failed: %v", err)
	}
	if len(collisions) != 0 {
		t.Errorf("expected no collisions, got %d", len(collisions))
	}
}

func TestRenderLedger(t *testing.T) {
	ops := []*types.Operation{
		types.NewCreateAccount("alice", types.VectorClock{0, 0, 0}).Stamp(0, 1),
		types.NewTransfer("broker", "alice", 100, types.VectorClock{1, 0, 0}).Stamp(0, 2),
	}

	want := "ledgerState {\n" +
		"  ledger {\n" +
		"    type: OP_CREATE_ACCOUNT\n" +
		"    userId: \"alice\"\n" +
		"  }\n" +
		"  ledger {\n" +
		"    type: OP_TRANSFER_TO\n" +
		"    userId: \"broker\"\n" +
		"    destUserId: \"alice\"\n" +
		"    amount: 100\n" +
		"  }\n" +
		"}\n"
	if got := RenderLedger(ops); got != want {
		t.Errorf("unexpected rendering:\n%s\nwant:\n%s", got, want)
	}

	if got := RenderLedger(nil); got != "ledgerState {\n}\n" {
		t.Errorf("unexpected empty rendering %q", got)
	}
}

func TestOK(t *testing.T) {
	if got := OK(); got != "OK\n" {
		t.Errorf("unexpected %q", got)
	}
	if got := OK("100"); got != "OK\n100\n" {
		t.Errorf("unexpected %q", got)
	}
}
