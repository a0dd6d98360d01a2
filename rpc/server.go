package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log"
	"github.com/rs/cors"

	"github.com/blockberries/distledger/engine"
	"github.com/blockberries/distledger/evidence"
	"github.com/blockberries/distledger/types"
)

var log = logging.Logger("rpc")

// Replica is the engine surface served over HTTP
type Replica interface {
	CreateAccount(account string, prevTS types.VectorClock) (types.VectorClock, error)
	TransferTo(from, to string, amount int64, prevTS types.VectorClock) (types.VectorClock, error)
	Balance(ctx context.Context, account string, prevTS types.VectorClock) (types.VectorClock, int64, error)
	Activate() error
	Deactivate() error
	Gossip(ctx context.Context) (*engine.GossipResult, error)
	ReceiveGossip(from string, ops []*types.Operation, replicaTS types.VectorClock) error
	GetLedgerState() []*types.Operation
	Collisions() []*evidence.Collision
	GetMetrics() (*engine.Metrics, error)
}

type requestIDKey struct{}

// RequestID returns the request id attached by the server middleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Server serves one replica's user, admin and gossip endpoints
type Server struct {
	replica Replica
}

// NewServer creates a server for replica
func NewServer(replica Replica) *Server {
	return &Server{replica: replica}
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Post(PathAccounts, s.handleCreateAccount)
	r.Post(PathTransfers, s.handleTransfer)
	r.Post(PathBalance, s.handleBalance)
	r.Post(PathGossip, s.handleReceiveGossip)

	r.Post(PathActivate, s.handleActivate)
	r.Post(PathDeactivate, s.handleDeactivate)
	r.Post(PathAdminGossip, s.handleGossip)
	r.Get(PathLedger, s.handleLedger)
	r.Get(PathCollisions, s.handleCollisions)
	r.Get(PathMetrics, s.handleMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return r
}

// requestID tags each request with the caller's X-Request-ID, or a fresh
// one, and logs it on completion
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))

		log.Debugw("request", "id", id, "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start).String())
	})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decode(w, r, &req) {
		return
	}
	ts, err := s.replica.CreateAccount(req.Account, req.PrevTS)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TSResponse{TS: ts})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	ts, err := s.replica.TransferTo(req.From, req.To, req.Amount, req.PrevTS)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TSResponse{TS: ts})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	var req BalanceRequest
	if !decode(w, r, &req) {
		return
	}
	// blocks until prevTS is covered or the caller goes away
	valueTS, value, err := s.replica.Balance(r.Context(), req.Account, req.PrevTS)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Value: value, ValueTS: valueTS})
}

func (s *Server) handleReceiveGossip(w http.ResponseWriter, r *http.Request) {
	var req GossipRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.replica.ReceiveGossip(req.From, req.Ledger, req.ReplicaTS); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := s.replica.Activate(); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.replica.Deactivate(); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGossip(w http.ResponseWriter, r *http.Request) {
	result, err := s.replica.Gossip(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := GossipResponse{
		Pushed:  nonNil(result.Pushed),
		Skipped: nonNil(result.Skipped),
	}
	if len(result.Failed) > 0 {
		resp.Failed = make(map[string]string, len(result.Failed))
		for q, err := range result.Failed {
			resp.Failed[q] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	ledger := s.replica.GetLedgerState()
	if ledger == nil {
		ledger = []*types.Operation{}
	}
	writeJSON(w, http.StatusOK, LedgerResponse{Ledger: ledger})
}

func (s *Server) handleCollisions(w http.ResponseWriter, r *http.Request) {
	collisions := s.replica.Collisions()
	if collisions == nil {
		collisions = []*evidence.Collision{}
	}
	writeJSON(w, http.StatusOK, CollisionsResponse{Collisions: collisions})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.replica.GetMetrics()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MetricsResponse{
		Qualifier:      m.Qualifier,
		Active:         m.Active,
		LedgerSize:     m.LedgerSize,
		Executed:       m.Executed,
		ValueTS:        m.ValueTS,
		ReplicaTS:      m.ReplicaTS,
		Accepted:       m.Accepted,
		Duplicates:     m.Duplicates,
		Merged:         m.Merged,
		Applied:        m.Applied,
		Updates:        m.Updates,
		Collisions:     m.Collisions,
		GossipRounds:   m.GossipRounds,
		GossipPushes:   m.GossipPushes,
		GossipSkipped:  m.GossipSkipped,
		GossipFailures: m.GossipFailures,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugw("failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := encodeError(err)
	if status == http.StatusInternalServerError {
		log.Warnw("request failed", "id", RequestID(r.Context()), "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, body)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
