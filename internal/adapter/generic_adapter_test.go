package adapter

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

func TestGenericAdapterReadConfigDefaultsToEmptyObject(t *testing.T) {
	a := NewGenericAdapter(protocol.SectionWan, t.TempDir())
	raw, err := a.ReadConfig(context.Background())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("expected empty object for unset config, got %s", raw)
	}
}

func TestGenericAdapterApplyThenReadRoundTrips(t *testing.T) {
	a := NewGenericAdapter(protocol.SectionLan, t.TempDir())
	ctx := context.Background()
	pushed := json.RawMessage(`{"subnet":"10.0.0.0/24"}`)

	if err := a.Apply(ctx, pushed, 1); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := a.ReadConfig(ctx)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(got) != string(pushed) {
		t.Errorf("got %s, want %s", got, pushed)
	}
}

func TestGenericAdapterDiffReportsChange(t *testing.T) {
	dir := t.TempDir()
	a := NewGenericAdapter(protocol.SectionIds, dir)
	ctx := context.Background()

	if err := a.Apply(ctx, json.RawMessage(`{"enabled":false}`), 1); err != nil {
		t.Fatal(err)
	}

	diff, err := a.Diff(ctx, json.RawMessage(`{"enabled":true}`))
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(diff.Changes) != 1 {
		t.Fatalf("expected one change, got %+v", diff.Changes)
	}
	if diff.Section != protocol.SectionIds {
		t.Errorf("section = %v", diff.Section)
	}
}

func TestGenericAdapterValidateRejectsInvalidJSON(t *testing.T) {
	a := NewGenericAdapter(protocol.SectionQos, t.TempDir())
	issues, err := a.Validate(context.Background(), json.RawMessage(`not json`))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected one validation issue, got %+v", issues)
	}
}

func TestRegistryGetAndSections(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(
		NewGenericAdapter(protocol.SectionWan, filepath.Join(dir, "wan")),
		NewGenericAdapter(protocol.SectionLan, filepath.Join(dir, "lan")),
	)

	if _, ok := r.Get(protocol.SectionWan); !ok {
		t.Fatal("expected wan adapter to be registered")
	}
	if _, ok := r.Get(protocol.SectionDns); ok {
		t.Fatal("dns should not be registered")
	}

	sections := r.Sections()
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %v", sections)
	}
}

func TestRegistryMustGetErrorsOnMissingSection(t *testing.T) {
	r := NewRegistry()
	if _, err := r.MustGet(protocol.SectionFirewall); err == nil {
		t.Fatal("expected error for unregistered section")
	}
}
