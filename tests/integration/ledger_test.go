package integration

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/blockberries/distledger/client"
	"github.com/blockberries/distledger/engine"
	"github.com/blockberries/distledger/naming"
	"github.com/blockberries/distledger/rpc"
	"github.com/blockberries/distledger/types"
	"github.com/blockberries/distledger/wal"
)

const service = "DistLedger"

// TestNode is one replica serving over HTTP
type TestNode struct {
	Qualifier string
	Engine    *engine.Engine
	WAL       *wal.FileWAL
	Server    *httptest.Server
	stopped   bool
}

// TestCluster is a naming server plus replicas registered with it
type TestCluster struct {
	t      *testing.T
	dir    string
	Naming *naming.Client
	Nodes  map[string]*TestNode
}

func newTestCluster(t *testing.T, qualifiers ...string) *TestCluster {
	t.Helper()
	dir := t.TempDir()

	registry, err := naming.OpenRegistry(filepath.Join(dir, "naming.db"))
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	namingSrv := httptest.NewServer(naming.NewServer(registry).Router())
	t.Cleanup(func() {
		namingSrv.Close()
		registry.Close()
	})

	c := &TestCluster{
		t:      t,
		dir:    dir,
		Naming: naming.NewClient(namingSrv.URL),
		Nodes:  make(map[string]*TestNode),
	}
	for _, q := range qualifiers {
		c.startNode(q)
	}
	return c
}

func (c *TestCluster) startNode(qualifier string) *TestNode {
	c.t.Helper()

	w, err := wal.NewFileWAL(filepath.Join(c.dir, qualifier+"_wal"))
	if err != nil {
		c.t.Fatalf("failed to create WAL: %v", err)
	}

	cfg := engine.DefaultConfig()
	cfg.Qualifier = qualifier
	cfg.ServiceName = service
	cfg.GossipInterval = 0
	cfg.WALPath = w.Group().Dir

	eng, err := engine.NewEngine(cfg, w, rpc.NewClient(), c.Naming)
	if err != nil {
		c.t.Fatalf("failed to create engine %s: %v", qualifier, err)
	}
	if err := eng.Start(); err != nil {
		c.t.Fatalf("failed to start engine %s: %v", qualifier, err)
	}

	node := &TestNode{
		Qualifier: qualifier,
		Engine:    eng,
		WAL:       w,
		Server:    httptest.NewServer(rpc.NewServer(eng).Router()),
	}
	if err := c.Naming.Register(context.Background(), service, qualifier, node.Server.URL); err != nil {
		c.t.Fatalf("failed to register %s: %v", qualifier, err)
	}
	c.Nodes[qualifier] = node
	c.t.Cleanup(func() { c.stopNode(node) })
	return node
}

func (c *TestCluster) stopNode(node *TestNode) {
	if node.stopped {
		return
	}
	node.stopped = true
	if c.Nodes[node.Qualifier] == node {
		delete(c.Nodes, node.Qualifier)
	}
	node.Server.Close()
	node.Engine.Stop()
}

// gossipAll runs one gossip round on every replica in qualifier order
func (c *TestCluster) gossipAll(admin *client.AdminService) {
	c.t.Helper()
	qs := make([]string, 0, len(c.Nodes))
	for q := range c.Nodes {
		qs = append(qs, q)
	}
	sort.Strings(qs)
	for _, q := range qs {
		if _, err := admin.Gossip(context.Background(), q); err != nil {
			c.t.Fatalf("gossip on %s failed: %v", q, err)
		}
	}
}

func TestClusterConvergence(t *testing.T) {
	c := newTestCluster(t, "A", "B", "C")
	ctx := context.Background()
	user := client.NewUserService(c.Naming, service, types.DefaultReplicaSet())
	admin := client.NewAdminService(c.Naming, service)

	if err := user.CreateAccount(ctx, "A", "alice"); err != nil {
		t.Fatalf("create alice failed: %v", err)
	}
	if err := user.Transfer(ctx, "A", "broker", "alice", 100); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	// B has not seen alice yet; the creation is accepted but deferred
	if err := user.CreateAccount(ctx, "B", "bob"); err != nil {
		t.Fatalf("create bob failed: %v", err)
	}

	c.gossipAll(admin)

	if err := user.Transfer(ctx, "C", "alice", "bob", 30); err != nil {
		t.Fatalf("transfer on C failed: %v", err)
	}
	c.gossipAll(admin)

	want := types.Balances{"broker": 900, "alice": 70, "bob": 30}
	var valueTS types.VectorClock
	for _, q := range []string{"A", "B", "C"} {
		state := c.Nodes[q].Engine.State()
		got := state.Balances()
		for account, balance := range want {
			if got[account] != balance {
				t.Errorf("%s: %s expected %d, got %d", q, account, balance, got[account])
			}
		}
		if got.Total() != 1000 {
			t.Errorf("%s: expected total 1000, got %d", q, got.Total())
		}
		if len(state.GetLedgerState()) != 4 {
			t.Errorf("%s: expected 4 ledger entries, got %d", q, len(state.GetLedgerState()))
		}
		if valueTS == nil {
			valueTS = state.ValueTS()
		} else if !state.ValueTS().Equal(valueTS) {
			t.Errorf("%s: valueTS %s differs from %s", q, state.ValueTS(), valueTS)
		}
	}

	// every replica can serve the session's causal context
	for _, q := range []string{"A", "B", "C"} {
		value, err := user.Balance(ctx, q, "bob")
		if err != nil {
			t.Fatalf("balance on %s failed: %v", q, err)
		}
		if value != 30 {
			t.Errorf("%s: expected bob 30, got %d", q, value)
		}
	}
}

func TestCausalReadAcrossReplicas(t *testing.T) {
	c := newTestCluster(t, "A", "B")
	ctx := context.Background()
	user := client.NewUserService(c.Naming, service, types.DefaultReplicaSet())
	admin := client.NewAdminService(c.Naming, service)

	if err := user.CreateAccount(ctx, "A", "alice"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := user.Transfer(ctx, "A", "broker", "alice", 25); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	done := make(chan int64, 1)
	go func() {
		v, err := user.Balance(ctx, "B", "alice")
		if err != nil {
			t.Errorf("balance failed: %v", err)
		}
		done <- v
	}()

	select {
	case v := <-done:
		t.Fatalf("read returned %d before B caught up", v)
	case <-time.After(100 * time.Millisecond):
	}

	if _, err := admin.Gossip(ctx, "A"); err != nil {
		t.Fatalf("gossip failed: %v", err)
	}
	select {
	case v := <-done:
		if v != 25 {
			t.Errorf("expected 25, got %d", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("read still blocked after gossip")
	}
}

func TestDeactivatedReplica(t *testing.T) {
	c := newTestCluster(t, "A", "B")
	ctx := context.Background()
	user := client.NewUserService(c.Naming, service, types.DefaultReplicaSet())
	admin := client.NewAdminService(c.Naming, service)

	if err := admin.Deactivate(ctx, "B"); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if err := user.CreateAccount(ctx, "B", "alice"); !errors.Is(err, engine.ErrNotActive) {
		t.Errorf("expected ErrNotActive, got %v", err)
	}
	// A keeps serving
	if err := user.CreateAccount(ctx, "A", "alice"); err != nil {
		t.Fatalf("create on A failed: %v", err)
	}
	if err := admin.Activate(ctx, "B"); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if _, err := admin.Gossip(ctx, "A"); err != nil {
		t.Fatalf("gossip failed: %v", err)
	}
	if _, err := user.Balance(ctx, "B", "alice"); err != nil {
		t.Errorf("balance on B failed: %v", err)
	}
}

func TestReplicaRestartFromWAL(t *testing.T) {
	c := newTestCluster(t, "A", "B")
	ctx := context.Background()
	user := client.NewUserService(c.Naming, service, types.DefaultReplicaSet())
	admin := client.NewAdminService(c.Naming, service)

	if err := user.CreateAccount(ctx, "A", "alice"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := user.Transfer(ctx, "A", "broker", "alice", 60); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if _, err := admin.Gossip(ctx, "A"); err != nil {
		t.Fatalf("gossip failed: %v", err)
	}

	old := c.Nodes["B"]
	before := old.Engine.State().Balances()
	c.stopNode(old)

	// a new B on a new address recovers from its WAL
	restarted := c.startNode("B")
	if restarted.Server.URL == old.Server.URL {
		t.Fatal("expected a new address")
	}
	after := restarted.Engine.State().Balances()
	for account, balance := range before {
		if after[account] != balance {
			t.Errorf("%s: expected %d after restart, got %d", account, balance, after[account])
		}
	}

	// the session rebinds to the new registration
	if _, err := user.Bind(ctx, "B"); err != nil {
		t.Fatalf("rebind failed: %v", err)
	}
	value, err := user.Balance(ctx, "B", "alice")
	if err != nil {
		t.Fatalf("balance after restart failed: %v", err)
	}
	if value != 60 {
		t.Errorf("expected 60, got %d", value)
	}
}
