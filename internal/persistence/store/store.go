// Package store holds snapshot blobs by slot name. The game treats it as an
// opaque key-value service.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"arcanecycles.io/internal/sim/tuning"
)

var (
	ErrNotFound = errors.New("save slot not found")
	ErrBadSlot  = errors.New("invalid save slot name")
)

type Store interface {
	Save(ctx context.Context, slot string, data []byte) error
	Load(ctx context.Context, slot string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, slot string) error
	Close() error
}

var slotRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidSlot rejects names that could escape a directory or collide with
// internal files.
func ValidSlot(slot string) error {
	if !slotRE.MatchString(slot) {
		return fmt.Errorf("%w: %q", ErrBadSlot, slot)
	}
	return nil
}

// Open selects a backend from the storage config.
func Open(cfg tuning.Storage) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFile(cfg.Path)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
