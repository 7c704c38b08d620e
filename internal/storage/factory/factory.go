// Package factory creates storage backends based on configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/brmkit/brm/internal/configfile"
	"github.com/brmkit/brm/internal/storage"
)

// BackendFactory is a function that creates a storage backend.
type BackendFactory func(ctx context.Context, path string) (storage.Store, error)

// backendRegistry holds registered backend factories.
var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a storage backend factory.
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// New creates a storage backend of the given type at path. An empty backend
// name selects sqlite.
func New(ctx context.Context, backend, path string) (storage.Store, error) {
	if backend == "" {
		backend = configfile.BackendSQLite
	}
	factory, ok := backendRegistry[backend]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", backend, configfile.BackendSQLite)
	}
	return factory(ctx, path)
}

// NewFromConfig creates a storage backend from the metadata.json in brmDir
// (the .brm directory). A missing config file falls back to defaults.
func NewFromConfig(ctx context.Context, brmDir string) (storage.Store, error) {
	cfg, err := configfile.Load(brmDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg == nil {
		cfg = configfile.DefaultConfig()
	}
	return New(ctx, cfg.GetBackend(), cfg.DatabasePath(brmDir))
}
