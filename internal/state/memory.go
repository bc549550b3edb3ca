package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"noprime/redirector/internal/domain"
)

type memorySettingsStore struct {
	mu      sync.RWMutex
	enabled *bool
}

func NewMemorySettingsStore() SettingsStore {
	return &memorySettingsStore{}
}

func (s *memorySettingsStore) Enabled(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.enabled == nil {
		return DefaultEnabled, nil
	}
	return *s.enabled, nil
}

func (s *memorySettingsStore) SetEnabled(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = &enabled
	return nil
}

// memoryTabStore keeps tab states as JSON, the same shape the Redis store
// keeps, so callers never share a stored value.
type memoryTabStore struct {
	mu   sync.RWMutex
	data map[int][]byte
}

func NewMemoryTabStore() TabStore {
	return &memoryTabStore{
		data: make(map[int][]byte),
	}
}

func (s *memoryTabStore) Get(_ context.Context, tabID int) (*domain.TabState, error) {
	s.mu.RLock()
	raw, ok := s.data[tabID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var st domain.TabState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state for tab %d: %w", tabID, err)
	}
	return &st, nil
}

func (s *memoryTabStore) Set(_ context.Context, st *domain.TabState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state for tab %d: %w", st.TabID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[st.TabID] = raw
	return nil
}

func (s *memoryTabStore) Delete(_ context.Context, tabID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, tabID)
	return nil
}
