package naming

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// RegisterRequest is the body of POST /register and POST /delete
type RegisterRequest struct {
	Service   string `json:"service"`
	Qualifier string `json:"qualifier"`
	Address   string `json:"address,omitempty"`
}

// LookupResponse is the body returned by GET /lookup. Addresses is empty,
// not an error, when nothing matches.
type LookupResponse struct {
	Addresses []string `json:"addresses"`
}

// ListResponse is the body returned by GET /servers
type ListResponse struct {
	Servers []Entry `json:"servers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes a Registry over HTTP
type Server struct {
	registry *Registry
}

// NewServer creates a naming server backed by registry
func NewServer(registry *Registry) *Server {
	return &Server{registry: registry}
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Post("/register", s.handleRegister)
	r.Get("/lookup", s.handleLookup)
	r.Post("/delete", s.handleDelete)
	r.Get("/servers", s.handleList)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.Register(req.Service, req.Qualifier, req.Address); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	qualifier := r.URL.Query().Get("qualifier")

	resp := LookupResponse{Addresses: []string{}}
	if qualifier == "" {
		entries, err := s.registry.List(service)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		for _, e := range entries {
			resp.Addresses = append(resp.Addresses, e.Address)
		}
	} else {
		entry, ok, err := s.registry.Lookup(service, qualifier)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if ok {
			resp.Addresses = append(resp.Addresses, entry.Address)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.Delete(req.Service, req.Qualifier, req.Address); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.registry.List(r.URL.Query().Get("service"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Servers: entries})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyService), errors.Is(err, ErrEmptyQualifier),
		errors.Is(err, ErrEmptyAddress), errors.Is(err, ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugw("failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
