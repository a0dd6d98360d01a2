/*
Package rpc carries replica operations over JSON/HTTP.

Server exposes a replica (normally an *engine.Engine) on three groups of
routes:

	POST /v1/accounts, /v1/transfers, /v1/balance    user operations
	POST /v1/admin/{activate,deactivate,gossip}      operator controls
	GET  /v1/admin/{ledger,collisions,metrics}       inspection
	POST /v1/gossip                                  replica-to-replica push

Failures are returned as {"code": ..., "error": ...}. Client maps each code
back to the sentinel error it came from, so errors.Is(err,
engine.ErrInsufficientFunds) works across the wire. Network faults wrap
ErrTransport instead.

Client implements engine.Transport.
*/
package rpc
