package testsupport

import (
	"testing"

	"scanwatch/internal/config"
	"scanwatch/internal/queue"
)

// MustOpenStore opens the queue store for the given config and registers a
// cleanup that closes it when the test ends.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close queue store: %v", err)
		}
	})
	return store
}
