package mode

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

func TestLoadMissingFileDefaultsToObserve(t *testing.T) {
	mc := Load(filepath.Join(t.TempDir(), "missing.json"), nil)
	if mc.Mode != protocol.ModeObserve {
		t.Fatalf("expected observe, got %v", mc.Mode)
	}
	if len(mc.SectionOverrides) != 0 {
		t.Fatalf("expected no overrides, got %v", mc.SectionOverrides)
	}
}

func TestLoadCorruptFileDefaultsToObserve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mode.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	mc := Load(path, nil)
	if mc.Mode != protocol.ModeObserve {
		t.Fatalf("expected observe fallback, got %v", mc.Mode)
	}
}

func TestPersistThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mode.json")
	want := protocol.ModeConfig{
		Mode:             protocol.ModeShadow,
		SectionOverrides: map[protocol.ConfigSection]protocol.AgentMode{protocol.SectionFirewall: protocol.ModeTakeover},
	}

	if err := Persist(path, want); err != nil {
		t.Fatalf("persist: %v", err)
	}

	got := Load(path, nil)
	if got.Mode != want.Mode {
		t.Errorf("mode = %v, want %v", got.Mode, want.Mode)
	}
	if got.SectionOverrides[protocol.SectionFirewall] != protocol.ModeTakeover {
		t.Errorf("override not round-tripped: %v", got.SectionOverrides)
	}
}

func TestStoreSetUpdatesCurrentAndWakesWatchers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mode.json")
	store := NewStore(path, nil)

	if store.Current().Mode != protocol.ModeObserve {
		t.Fatalf("expected initial observe, got %v", store.Current().Mode)
	}

	ch := store.Changed()
	woke := make(chan struct{})
	go func() {
		<-ch
		close(woke)
	}()

	if err := store.Set(protocol.ModeConfig{Mode: protocol.ModeTakeover}); err != nil {
		t.Fatalf("set: %v", err)
	}

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("watcher should have woken after Set")
	}

	if store.Current().Mode != protocol.ModeTakeover {
		t.Fatalf("expected takeover after set, got %v", store.Current().Mode)
	}

	reloaded := Load(path, nil)
	if reloaded.Mode != protocol.ModeTakeover {
		t.Fatalf("persisted file should reflect new mode, got %v", reloaded.Mode)
	}
}
