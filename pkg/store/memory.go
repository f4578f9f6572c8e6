// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-memory Documents implementation backed by nested
// maps. It is used by the test suite and works for development runs;
// nothing survives a restart.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]json.RawMessage
}

var _ Documents = (*Memory)(nil)

// NewMemory creates an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]map[string]json.RawMessage),
	}
}

func (m *Memory) FetchAll(_ context.Context, kind string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]json.RawMessage, 0, len(m.docs[kind]))
	for _, raw := range m.docs[kind] {
		out = append(out, raw)
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, kind, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.docs[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

func (m *Memory) Insert(_ context.Context, kind, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", kind, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[kind][id]; exists {
		return fmt.Errorf("%s document %q already exists", kind, id)
	}
	if m.docs[kind] == nil {
		m.docs[kind] = make(map[string]json.RawMessage)
	}
	m.docs[kind][id] = raw
	return nil
}

func (m *Memory) Update(_ context.Context, kind, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", kind, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[kind][id]; !exists {
		return ErrNotFound
	}
	m.docs[kind][id] = raw
	return nil
}

func (m *Memory) Upsert(_ context.Context, kind, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", kind, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[kind] == nil {
		m.docs[kind] = make(map[string]json.RawMessage)
	}
	m.docs[kind][id] = raw
	return nil
}

func (m *Memory) Delete(_ context.Context, kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[kind], id)
	return nil
}
