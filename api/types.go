// Package api holds the wire-level types and protocol constants shared by
// the tbl server and its standalone clients. The stop client deliberately
// depends on nothing but this package and raw sockets.
package api

// CookieName carries the session secret in the browser after a successful
// bootstrap handshake.
const CookieName = "tbl_token"

// Privileged endpoint paths.
const (
	BootstrapPath = "/bootstrap"
	SetupPath     = "/setup"
	PingPath      = "/api/v1/ping"
	ShutdownPath  = "/api/v1/shutdown"
	ScriptPath    = "/tbl.js"
	WebMount      = "/web/"
)

// Status values returned by the JSON endpoints.
const (
	StatusOK           = "ok"
	StatusShuttingDown = "shutting_down"
)

// PingResponse answers the authenticated health check.
type PingResponse struct {
	Status string `json:"status"`
}

// ShutdownResponse acknowledges an accepted shutdown request. The body is
// written before the server stops accepting connections, so a stop client
// can treat its presence as confirmation.
type ShutdownResponse struct {
	Status string `json:"status"`
}

// ErrorResponse reports a request failure on the JSON endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
