package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/blockberries/distledger/engine"
)

// Errors
var (
	ErrTransport  = errors.New("transport failure")
	ErrBadRequest = errors.New("malformed request")
	ErrInternal   = errors.New("internal server error")
)

// Error codes on the wire
const (
	CodeNotActive         = "NOT_ACTIVE"
	CodeAlreadyActive     = "ALREADY_ACTIVE"
	CodeAlreadyInactive   = "ALREADY_INACTIVE"
	CodeBrokerImmutable   = "BROKER_IMMUTABLE"
	CodeAccountExists     = "ACCOUNT_EXISTS"
	CodeNoSuchAccount     = "NO_SUCH_ACCOUNT"
	CodeNoSuchDestination = "NO_SUCH_DESTINATION"
	CodeSelfTransfer      = "SELF_TRANSFER"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInvalidTimestamp  = "INVALID_TIMESTAMP"
	CodeInvalidAccount    = "INVALID_ACCOUNT"
	CodeNotStarted        = "NOT_STARTED"
	CodeNoTransport       = "NO_TRANSPORT"
	CodeBadRequest        = "BAD_REQUEST"
	CodeDeadlineExceeded  = "DEADLINE_EXCEEDED"
	CodeCancelled         = "CANCELLED"
	CodeInternal          = "INTERNAL"
)

type errorCode struct {
	code   string
	status int
	err    error
}

var errorCodes = []errorCode{
	{CodeNotActive, http.StatusServiceUnavailable, engine.ErrNotActive},
	{CodeAlreadyActive, http.StatusConflict, engine.ErrAlreadyActive},
	{CodeAlreadyInactive, http.StatusConflict, engine.ErrAlreadyInactive},
	{CodeBrokerImmutable, http.StatusConflict, engine.ErrBrokerImmutable},
	{CodeAccountExists, http.StatusConflict, engine.ErrAccountExists},
	{CodeNoSuchAccount, http.StatusNotFound, engine.ErrNoSuchAccount},
	{CodeNoSuchDestination, http.StatusNotFound, engine.ErrNoSuchDestination},
	{CodeSelfTransfer, http.StatusBadRequest, engine.ErrSelfTransfer},
	{CodeInvalidAmount, http.StatusBadRequest, engine.ErrInvalidAmount},
	{CodeInsufficientFunds, http.StatusUnprocessableEntity, engine.ErrInsufficientFunds},
	{CodeInvalidTimestamp, http.StatusBadRequest, engine.ErrInvalidTimestamp},
	{CodeInvalidAccount, http.StatusBadRequest, engine.ErrInvalidAccount},
	{CodeNotStarted, http.StatusServiceUnavailable, engine.ErrNotStarted},
	{CodeNoTransport, http.StatusServiceUnavailable, engine.ErrNoTransport},
	{CodeBadRequest, http.StatusBadRequest, ErrBadRequest},
	{CodeDeadlineExceeded, http.StatusGatewayTimeout, context.DeadlineExceeded},
	{CodeCancelled, http.StatusServiceUnavailable, context.Canceled},
}

// encodeError maps an error to its wire code and HTTP status
func encodeError(err error) (int, ErrorResponse) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.status, ErrorResponse{Code: ec.code, Error: err.Error()}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Error: err.Error()}
}

// decodeError maps a wire error back to the sentinel it was built from so
// callers can use errors.Is across the transport
func decodeError(status int, resp ErrorResponse) error {
	for _, ec := range errorCodes {
		if ec.code == resp.Code {
			if resp.Error == "" || resp.Error == ec.err.Error() {
				return ec.err
			}
			return &remoteError{err: ec.err, msg: resp.Error}
		}
	}
	if resp.Error == "" {
		resp.Error = http.StatusText(status)
	}
	return fmt.Errorf("%w: %d: %s", ErrInternal, status, resp.Error)
}

// remoteError keeps the server's message while unwrapping to the sentinel
type remoteError struct {
	err error
	msg string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.err }
