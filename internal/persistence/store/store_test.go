package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"arcanecycles.io/internal/sim/tuning"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	file, err := NewFile(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	db, err := OpenSQLite(filepath.Join(dir, "saves.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return map[string]Store{"file": file, "sqlite": db, "memory": NewMemory()}
}

func TestStore_SaveLoadListDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		if err := s.Save(ctx, "b-slot", []byte("two")); err != nil {
			t.Fatalf("%s save: %v", name, err)
		}
		if err := s.Save(ctx, "a-slot", []byte("one")); err != nil {
			t.Fatalf("%s save: %v", name, err)
		}
		if err := s.Save(ctx, "a-slot", []byte("one again")); err != nil {
			t.Fatalf("%s overwrite: %v", name, err)
		}
		got, err := s.Load(ctx, "a-slot")
		if err != nil || string(got) != "one again" {
			t.Fatalf("%s load: %q %v", name, got, err)
		}
		slots, err := s.List(ctx)
		if err != nil || !reflect.DeepEqual(slots, []string{"a-slot", "b-slot"}) {
			t.Fatalf("%s list: %v %v", name, slots, err)
		}
		if err := s.Delete(ctx, "a-slot"); err != nil {
			t.Fatalf("%s delete: %v", name, err)
		}
		if _, err := s.Load(ctx, "a-slot"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s load deleted: %v", name, err)
		}
		if err := s.Delete(ctx, "a-slot"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s delete twice: %v", name, err)
		}
	}
}

func TestStore_RejectsBadSlot(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		if err := s.Save(ctx, "../escape", []byte("x")); !errors.Is(err, ErrBadSlot) {
			t.Fatalf("%s: got %v", name, err)
		}
	}
}

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"":       "*store.File",
		"file":   "*store.File",
		"sqlite": "*store.SQLite",
		"memory": "*store.Memory",
	}
	for backend, want := range cases {
		s, err := Open(tuning.Storage{Backend: backend, Path: dir})
		if err != nil {
			t.Fatalf("%q: %v", backend, err)
		}
		if got := reflect.TypeOf(s).String(); got != want {
			t.Fatalf("%q: got %s want %s", backend, got, want)
		}
		_ = s.Close()
	}
	if _, err := Open(tuning.Storage{Backend: "redis"}); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
