package testutil

import (
	"testing"

	"github.com/bpfgate/bpfgate/internal/config"
	"github.com/bpfgate/bpfgate/internal/store"
)

// TestConfig returns a Config with sensible test defaults.
func TestConfig() *config.Config {
	return &config.Config{
		Listen: "127.0.0.1:0",
		Board:  "native",
		DBPath: ":memory:",
		Slots:  []string{"ram.0", "ram.1"},
		Engine: config.EngineConfig{
			StackSize:    "512B",
			BranchBudget: 100,
		},
		Update: config.UpdateConfig{
			ManifestTemplate: "http://[{addr}]/suit_manifest.signed",
			TargetSlot:       "ram.0",
			MaxAddressLen:    45,
			FetchTimeoutMs:   1000,
			MaxImageBytes:    64 * 1024,
			QueueSize:        8,
		},
		ExecPool: config.ExecPoolConfig{
			Workers:   2,
			QueueSize: 4,
			History:   8,
		},
		StackBytes: 512,
	}
}

// NewTestStore creates an in-memory SQLite store for testing.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
