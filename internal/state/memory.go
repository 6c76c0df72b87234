package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps objects and states in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Meta
	states  map[string]State
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Meta),
		states:  make(map[string]State),
		now:     time.Now,
	}
}

func (m *MemoryStore) DeclareObject(ctx context.Context, meta Meta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[meta.Key]; !exists {
		m.objects[meta.Key] = meta
	}
	return nil
}

func (m *MemoryStore) SetState(ctx context.Context, key string, value interface{}, ack bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[key] = State{
		Key:       key,
		Value:     value,
		Ack:       ack,
		Timestamp: m.now(),
	}
	return nil
}

func (m *MemoryStore) SetStates(ctx context.Context, states []State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, st := range states {
		st.Timestamp = now
		m.states[st.Key] = st
	}
	return nil
}

func (m *MemoryStore) GetState(ctx context.Context, key string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[key]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// GetObject returns the declared metadata of a key
func (m *MemoryStore) GetObject(key string) (Meta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.objects[key]
	return meta, ok
}

// ListStates returns all states sorted by key
func (m *MemoryStore) ListStates() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]State, 0, len(m.states))
	for _, st := range m.states {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Key < states[j].Key })
	return states
}

// ListObjects returns all declared objects sorted by key
func (m *MemoryStore) ListObjects() []Meta {
	m.mu.RLock()
	defer m.mu.RUnlock()

	objects := make([]Meta, 0, len(m.objects))
	for _, meta := range m.objects {
		objects = append(objects, meta)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects
}

// Restore seeds the store with previously persisted objects and states.
// Timestamps are kept; existing entries are overwritten.
func (m *MemoryStore) Restore(objects []Meta, states []State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, meta := range objects {
		m.objects[meta.Key] = meta
	}
	for _, st := range states {
		m.states[st.Key] = st
	}
}
