package sqlite

import (
	"context"
	"testing"
)

// newTestStore opens a Store on a fresh temp-file database and closes it
// when the test finishes. A file beats ":memory:" here: the shared
// in-memory database leaks state between tests once the pool opens a
// second connection.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close test store: %v", err)
		}
	})
	return store
}
