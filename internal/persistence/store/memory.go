package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type Memory struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemory() *Memory { return &Memory{slots: map[string][]byte{}} }

func (m *Memory) Save(ctx context.Context, slot string, data []byte) error {
	if err := ValidSlot(slot); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Load(ctx context.Context, slot string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.slots[slot]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slot)
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.slots))
	for k := range m.slots {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[slot]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, slot)
	}
	delete(m.slots, slot)
	return nil
}

func (m *Memory) Close() error { return nil }
