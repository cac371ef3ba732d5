package plan

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps plans in a process-local map. It is the default backend
// and the one tests use; a restart loses all plans.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]*ActionPlan
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]*ActionPlan)}
}

func (s *MemoryStore) Create(ctx context.Context, actionPlan *ActionPlan) error {
	if actionPlan == nil || actionPlan.ID == "" {
		return fmt.Errorf("action plan id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[actionPlan.ID]; exists {
		return fmt.Errorf("action plan %q already exists", actionPlan.ID)
	}
	s.plans[actionPlan.ID] = actionPlan.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*ActionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("action plan %q: %w", id, ErrNotFound)
	}
	return stored.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, actionPlan *ActionPlan, expectedVersion int) error {
	if actionPlan == nil || actionPlan.ID == "" {
		return fmt.Errorf("action plan id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.plans[actionPlan.ID]
	if !ok {
		return fmt.Errorf("action plan %q: %w", actionPlan.ID, ErrNotFound)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("action plan %q at version %d, expected %d: %w",
			actionPlan.ID, stored.Version, expectedVersion, ErrVersionConflict)
	}
	s.plans[actionPlan.ID] = actionPlan.Clone()
	return nil
}

func (s *MemoryStore) Commit(ctx context.Context, id string) (*ActionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("action plan %q: %w", id, ErrNotFound)
	}
	stored.Status = StatusSaved
	stored.UpdatedAt = time.Now().UTC()
	return stored.Clone(), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
