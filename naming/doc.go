// Package naming implements the directory that maps a service name and a
// replica qualifier to a network address.
//
// Registry persists registrations in a bbolt database. Server exposes it
// over HTTP:
//
//	POST /register  {"service","qualifier","address"}
//	GET  /lookup?service=S&qualifier=Q  -> {"addresses": [...]}
//	POST /delete    {"service","qualifier","address"}
//	GET  /servers?service=S
//
// A lookup that matches nothing returns an empty list, never an error.
// Omitting the qualifier lists every server of the service.
//
// Client and StaticDirectory both satisfy engine.Directory.
package naming
