// Package server provides HTTP/HTTPS server lifecycle management with
// non-blocking startup, graceful shutdown, and OS signal handling. Used by
// both the client-facing and admin HTTP listeners in cmd/gateway.
package server
