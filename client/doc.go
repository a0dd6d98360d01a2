// Package client holds the user and admin clients of a ledger cluster.
//
// Both resolve replica qualifiers through an engine.Directory, normally a
// naming.Client, and keep the last address that resolved: an empty lookup
// never drops a working binding. UserService also carries the session's
// causal context so reads never go backward relative to the session's own
// writes.
package client
