package catalogs

import (
	"reflect"
	"testing"

	"arcanecycles.io/internal/sim/model"
)

func TestLoad_ShippedConfigsMatchDefaults(t *testing.T) {
	got, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	want := Defaults()

	if !reflect.DeepEqual(got.Constructs.ByType, want.Constructs.ByType) {
		t.Fatalf("constructs drifted:\n got=%+v\nwant=%+v", got.Constructs.ByType, want.Constructs.ByType)
	}
	if !reflect.DeepEqual(got.Events.ByID, want.Events.ByID) {
		t.Fatalf("events drifted:\n got=%+v\nwant=%+v", got.Events.ByID, want.Events.ByID)
	}
	if !reflect.DeepEqual(got.Events.IDs, want.Events.IDs) {
		t.Fatalf("event ids: got %v want %v", got.Events.IDs, want.Events.IDs)
	}
	if !reflect.DeepEqual(got.Install.Outcomes, want.Install.Outcomes) {
		t.Fatalf("install outcomes drifted")
	}
	if !reflect.DeepEqual(got.Install.FirstCycleExcluded, want.Install.FirstCycleExcluded) {
		t.Fatalf("first cycle exclusions drifted")
	}
	if got.Events.Digest == "" || got.Constructs.Digest == "" || got.Install.Digest == "" {
		t.Fatalf("expected digests to be set")
	}
}

func TestDefaultsValidate(t *testing.T) {
	c := Defaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if got := c.IdealTerrain(model.ArcaneForge); got != model.Mountain {
		t.Fatalf("arcane forge ideal terrain: got %s", got)
	}
}

func TestValidate_RejectsUnknownEffect(t *testing.T) {
	c := Defaults()
	ev := c.Events.ByID["ARCANE_BOOM"]
	ev.Effect = "teleport"
	c.Events.ByID["ARCANE_BOOM"] = ev
	if err := c.Validate(); err == nil {
		t.Fatalf("expected unknown effect to be rejected")
	}
}
