// Package httpapi serves a session over HTTP for local clients such as
// editor extensions.
//
// Endpoints:
//
//	GET  /health            liveness with uptime
//	GET  /health/detailed   process, runtime and request counters
//	GET  /health/database   vector store probe
//	GET  /info              capabilities and endpoints
//	POST /shutdown          graceful stop, optionally delayed
//	POST /rpc               one internal/protocol request envelope
//
// The server binds the preferred port when it is free and otherwise a
// random port from a range; see Listen. The chosen port can be published
// in a port file for clients to discover.
package httpapi
