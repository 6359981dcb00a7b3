package history

import (
	"context"
	"log"
)

// DefaultKey names the persistence slot when none is configured.
const DefaultKey = "testpilot_history"

// Slot is a named key-value store holding the serialized history.
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Load reads the store from key. Missing or unreadable data gives an empty store.
func Load(ctx context.Context, slot Slot, key string) Store {
	data, ok, err := slot.Get(ctx, key)
	if err != nil {
		log.Printf("history load error key=%s: %v", key, err)
		return Store{}
	}
	if !ok {
		return Store{}
	}
	s := Parse(data)
	log.Printf("history loaded key=%s entries=%d", key, s.Len())
	return s
}

// Save writes s to key. Failures are logged; the in-memory store stays authoritative.
func Save(ctx context.Context, slot Slot, key string, s Store) {
	data, err := s.Marshal()
	if err != nil {
		log.Printf("history encode error key=%s: %v", key, err)
		return
	}
	if err := slot.Set(ctx, key, data); err != nil {
		log.Printf("history save error key=%s: %v", key, err)
	}
}

// MemorySlot is an in-process Slot, used when no backend is configured and in tests.
type MemorySlot struct {
	values map[string][]byte
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{values: make(map[string][]byte)}
}

func (m *MemorySlot) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemorySlot) Set(_ context.Context, key string, value []byte) error {
	m.values[key] = append([]byte(nil), value...)
	return nil
}
