package factory

import (
	"context"

	"github.com/brmkit/brm/internal/configfile"
	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/storage/sqlite"
)

func init() {
	RegisterBackend(configfile.BackendSQLite, func(ctx context.Context, path string) (storage.Store, error) {
		return sqlite.New(ctx, path)
	})
}
