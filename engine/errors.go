package engine

import "errors"

// Ledger errors returned to clients. Each is detected before any mutation.
var (
	ErrNotActive         = errors.New("replica is not active")
	ErrAlreadyActive     = errors.New("replica is already active")
	ErrAlreadyInactive   = errors.New("replica is already inactive")
	ErrBrokerImmutable   = errors.New("broker account cannot be created")
	ErrAccountExists     = errors.New("account already exists")
	ErrNoSuchAccount     = errors.New("account does not exist")
	ErrNoSuchDestination = errors.New("destination account does not exist")
	ErrSelfTransfer      = errors.New("source and destination are the same account")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidTimestamp  = errors.New("vector clock has the wrong number of slots")
	ErrInvalidAccount    = errors.New("invalid account id")
)

// Engine errors
var (
	ErrWALWrite       = errors.New("WAL write failed")
	ErrWALReplay      = errors.New("WAL replay failed")
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
	ErrInvalidConfig  = errors.New("invalid engine config")
	ErrNoTransport    = errors.New("no gossip transport configured")
	ErrPeerNotFound   = errors.New("peer not registered in directory")
)
