// Package brm provides a minimal public API for extending brm with custom tooling.
//
// Most integrations should use direct SQL queries against brm's database.
// This package exports only the essential types and functions needed for
// Go-based integrations that want to use brm's storage layer programmatically.
package brm

import (
	"context"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/storage/factory"
	"github.com/brmkit/brm/internal/storage/sqlite"
	"github.com/brmkit/brm/internal/types"
)

// Core types for working with rules
type (
	Rule           = types.Rule
	RuleStatus     = types.RuleStatus
	ApprovalStatus = types.ApprovalStatus
	ActionType     = types.ActionType
	Actor          = types.Actor
	RuleFilter     = types.RuleFilter
)

// Rule status constants
const (
	StatusInactive             = types.StatusInactive
	StatusActive               = types.StatusActive
	StatusDeactivateInProgress = types.StatusDeactivateInProgress
	StatusDeleteInProgress     = types.StatusDeleteInProgress
)

// Action type constants
const (
	ActionCreateOrUpdate = types.ActionCreateOrUpdate
	ActionDeactivate     = types.ActionDeactivate
	ActionDelete         = types.ActionDelete
)

// Store provides the minimal interface for integration tooling
type Store = storage.Store

// Open opens a brm SQLite database for programmatic access, creating the
// schema on first use. Most integrations should use this to inspect rules
// and read the audit trail.
func Open(ctx context.Context, dbPath string) (Store, error) {
	return sqlite.New(ctx, dbPath)
}

// OpenFromConfig opens the store described by the metadata.json in brmDir
// (a .brm directory). The backend named there decides the storage engine;
// a missing config file falls back to the sqlite defaults.
func OpenFromConfig(ctx context.Context, brmDir string) (Store, error) {
	return factory.NewFromConfig(ctx, brmDir)
}
