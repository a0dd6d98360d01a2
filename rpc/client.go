package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blockberries/distledger/evidence"
	"github.com/blockberries/distledger/types"
)

// DefaultPushTimeout bounds one gossip push
const DefaultPushTimeout = 5 * time.Second

// Client calls replica servers. Every method takes the target address
// ("host:port" or a full URL) so one client serves a whole cluster.
// Requests carry no client-side timeout of their own; Balance may block
// for as long as ctx allows.
type Client struct {
	http        *http.Client
	pushTimeout time.Duration
}

// NewClient creates a replica client
func NewClient() *Client {
	return &Client{
		http:        &http.Client{},
		pushTimeout: DefaultPushTimeout,
	}
}

// WithPushTimeout sets the bound applied to each gossip push
func (c *Client) WithPushTimeout(d time.Duration) *Client {
	c.pushTimeout = d
	return c
}

// CreateAccount creates an account on the replica at address
func (c *Client) CreateAccount(ctx context.Context, address, account string, prevTS types.VectorClock) (types.VectorClock, error) {
	var resp TSResponse
	if err := c.call(ctx, address, PathAccounts, CreateAccountRequest{Account: account, PrevTS: prevTS}, &resp); err != nil {
		return nil, err
	}
	return resp.TS, nil
}

// TransferTo moves amount between accounts on the replica at address
func (c *Client) TransferTo(ctx context.Context, address, from, to string, amount int64, prevTS types.VectorClock) (types.VectorClock, error) {
	var resp TSResponse
	req := TransferRequest{From: from, To: to, Amount: amount, PrevTS: prevTS}
	if err := c.call(ctx, address, PathTransfers, req, &resp); err != nil {
		return nil, err
	}
	return resp.TS, nil
}

// Balance reads a balance, blocking until the replica covers prevTS
func (c *Client) Balance(ctx context.Context, address, account string, prevTS types.VectorClock) (types.VectorClock, int64, error) {
	var resp BalanceResponse
	if err := c.call(ctx, address, PathBalance, BalanceRequest{Account: account, PrevTS: prevTS}, &resp); err != nil {
		return nil, 0, err
	}
	return resp.ValueTS, resp.Value, nil
}

// PushGossip sends a ledger and replicaTS from the replica qualified by
// from to the replica at address
func (c *Client) PushGossip(ctx context.Context, address, from string, ops []*types.Operation, replicaTS types.VectorClock) error {
	if c.pushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.pushTimeout)
		defer cancel()
	}
	return c.call(ctx, address, PathGossip, GossipRequest{From: from, Ledger: ops, ReplicaTS: replicaTS}, nil)
}

// Activate switches the replica at address on
func (c *Client) Activate(ctx context.Context, address string) error {
	return c.call(ctx, address, PathActivate, nil, nil)
}

// Deactivate switches the replica at address off
func (c *Client) Deactivate(ctx context.Context, address string) error {
	return c.call(ctx, address, PathDeactivate, nil, nil)
}

// Gossip makes the replica at address run a gossip round now
func (c *Client) Gossip(ctx context.Context, address string) (*GossipResponse, error) {
	var resp GossipResponse
	if err := c.call(ctx, address, PathAdminGossip, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetLedgerState fetches the ledger of the replica at address
func (c *Client) GetLedgerState(ctx context.Context, address string) ([]*types.Operation, error) {
	var resp LedgerResponse
	if err := c.get(ctx, address, PathLedger, &resp); err != nil {
		return nil, err
	}
	return resp.Ledger, nil
}

// Collisions fetches the dedup-key collisions recorded by the replica
func (c *Client) Collisions(ctx context.Context, address string) ([]*evidence.Collision, error) {
	var resp CollisionsResponse
	if err := c.get(ctx, address, PathCollisions, &resp); err != nil {
		return nil, err
	}
	return resp.Collisions, nil
}

// Metrics fetches replica metrics
func (c *Client) Metrics(ctx context.Context, address string) (*MetricsResponse, error) {
	var resp MetricsResponse
	if err := c.get(ctx, address, PathMetrics, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, address, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(address)+path, rd)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, address, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(address)+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	id := uuid.NewString()
	req.Header.Set(HeaderRequestID, id)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrTransport, ctxErr)
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var er ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			er = ErrorResponse{}
		}
		err := decodeError(resp.StatusCode, er)
		log.Debugw("request rejected", "id", id, "path", req.URL.Path, "status", resp.StatusCode, "err", err)
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrTransport, err)
	}
	return nil
}

func baseURL(address string) string {
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	return strings.TrimRight(address, "/")
}

// IsTransport reports whether err is a network fault rather than a
// replica's answer
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
