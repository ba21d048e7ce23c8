// Package quantumgo is a multi-backend object-document mapper: one document
// class definition maps to a document/graph store, a columnar analytical
// store, or an embedded key-value store, through the uniform backend.Adapter
// contract.
package quantumgo

import (
	"github.com/iristech-systems/quantumgo/connection"
)

// ConnectionOptions is the user-facing shape of create_connection's
// keyword arguments (spec §6.1): which backend, how to reach it, and how
// its pool should be sized.
type ConnectionOptions struct {
	Backend string
	Params  map[string]any
	Pool    connection.PoolConfig
}

// DefaultConnectionOptions mirrors DefaultPoolConfig, leaving Backend/Params
// for the caller to fill in.
func DefaultConnectionOptions(backendName string) ConnectionOptions {
	return ConnectionOptions{
		Backend: backendName,
		Params:  map[string]any{},
		Pool:    connection.DefaultPoolConfig(),
	}
}
