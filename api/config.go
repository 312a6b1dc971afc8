// Package api provides the HTTP API server for registering and searching
// functions.
package api

import "github.com/prometheus/client_golang/prometheus"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Gatherer backs GET /metrics. The route is not mounted when nil.
	Gatherer prometheus.Gatherer

	// DisableMCP skips mounting the MCP streamable HTTP endpoint at /mcp.
	DisableMCP bool
}
