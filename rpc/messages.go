package rpc

import (
	"github.com/blockberries/distledger/evidence"
	"github.com/blockberries/distledger/types"
)

// HeaderRequestID carries the request id between client and server
const HeaderRequestID = "X-Request-ID"

// Routes
const (
	PathAccounts    = "/v1/accounts"
	PathTransfers   = "/v1/transfers"
	PathBalance     = "/v1/balance"
	PathGossip      = "/v1/gossip"
	PathActivate    = "/v1/admin/activate"
	PathDeactivate  = "/v1/admin/deactivate"
	PathAdminGossip = "/v1/admin/gossip"
	PathLedger      = "/v1/admin/ledger"
	PathCollisions  = "/v1/admin/collisions"
	PathMetrics     = "/v1/admin/metrics"
)

// CreateAccountRequest asks a replica to create an account
type CreateAccountRequest struct {
	Account string            `json:"userId"`
	PrevTS  types.VectorClock `json:"prevTS"`
}

// TransferRequest asks a replica to move funds
type TransferRequest struct {
	From   string            `json:"accountFrom"`
	To     string            `json:"accountTo"`
	Amount int64             `json:"amount"`
	PrevTS types.VectorClock `json:"prevTS"`
}

// TSResponse carries the TS assigned to an update
type TSResponse struct {
	TS types.VectorClock `json:"TS"`
}

// BalanceRequest asks for the balance of an account
type BalanceRequest struct {
	Account string            `json:"userId"`
	PrevTS  types.VectorClock `json:"prevTS"`
}

// BalanceResponse carries the balance and the replica's valueTS
type BalanceResponse struct {
	Value   int64             `json:"value"`
	ValueTS types.VectorClock `json:"valueTS"`
}

// GossipRequest is a replica's whole ledger and replicaTS
type GossipRequest struct {
	From      string             `json:"from,omitempty"`
	Ledger    []*types.Operation `json:"ledger"`
	ReplicaTS types.VectorClock  `json:"replicaTS"`
}

// GossipResponse summarises an operator-triggered gossip round
type GossipResponse struct {
	Pushed  []string          `json:"pushed"`
	Skipped []string          `json:"skipped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// LedgerResponse is the replica's ledger
type LedgerResponse struct {
	Ledger []*types.Operation `json:"ledger"`
}

// CollisionsResponse lists recorded dedup-key collisions
type CollisionsResponse struct {
	Collisions []*evidence.Collision `json:"collisions"`
}

// MetricsResponse mirrors engine.Metrics
type MetricsResponse struct {
	Qualifier      string            `json:"qualifier"`
	Active         bool              `json:"active"`
	LedgerSize     int               `json:"ledgerSize"`
	Executed       int               `json:"executed"`
	ValueTS        types.VectorClock `json:"valueTS"`
	ReplicaTS      types.VectorClock `json:"replicaTS"`
	Accepted       uint64            `json:"accepted"`
	Duplicates     uint64            `json:"duplicates"`
	Merged         uint64            `json:"merged"`
	Applied        uint64            `json:"applied"`
	Updates        uint64            `json:"updates"`
	Collisions     uint64            `json:"collisions"`
	GossipRounds   uint64            `json:"gossipRounds"`
	GossipPushes   uint64            `json:"gossipPushes"`
	GossipSkipped  uint64            `json:"gossipSkipped"`
	GossipFailures uint64            `json:"gossipFailures"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
