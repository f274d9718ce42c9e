package graphengine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/graphkeep/graphkeep/pkg/config"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.Backend = "log"
	cfg.Store.Path = filepath.Join(t.TempDir(), "graph.ndjson")
	cfg.Scheduler.Enabled = false

	f, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := f.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return f
}

func TestOpenBuildsEveryComponent(t *testing.T) {
	f := newTestFacade(t)
	if f.store == nil || f.basic == nil || f.ranked == nil || f.bm25 == nil ||
		f.boolean == nil || f.fuzzy == nil || f.hybrid == nil || f.tracker == nil ||
		f.decay == nil || f.salience == nil || f.working == nil || f.context == nil {
		t.Fatalf("Open left a component nil: %+v", f)
	}
}

func TestOpenDefaultsNilConfig(t *testing.T) {
	// A nil config falls back to config.DefaultConfig(), which points at
	// the user's home directory; only check it doesn't error validating.
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate: %v", err)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Backend = "carrier-pigeon"
	cfg.Store.Path = filepath.Join(t.TempDir(), "graph.db")
	if _, err := Open(cfg); err == nil {
		t.Fatal("expected an error for an unknown store backend")
	}
}

func TestCloseIsIdempotentForLogBackend(t *testing.T) {
	f := newTestFacade(t)
	if err := f.Close(context.Background()); err != nil {
		t.Fatalf("first Close: %v", err)
	}
}

func TestNewSessionIDIsUnique(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b {
		t.Fatalf("expected distinct session ids, got %q twice", a)
	}
}

func TestTelemetryNilWhenNotConfigured(t *testing.T) {
	f := newTestFacade(t)
	if f.Telemetry() != nil {
		t.Fatalf("expected nil recorder without WithTelemetry, got %+v", f.Telemetry())
	}
	// Nil-receiver methods must not panic even though no recorder is set.
	f.recordSearch("basic", 3)
}
