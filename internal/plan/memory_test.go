package plan

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newDraftPlan(id string) *ActionPlan {
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	return &ActionPlan{
		ID:        id,
		Title:     "Launch checklist",
		Content:   "1. Do the thing",
		Status:    StatusDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newDraftPlan("plan-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	created, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if created.Version != 1 || created.Status != StatusDraft {
		t.Fatalf("created plan = v%d %s, want v1 draft", created.Version, created.Status)
	}

	updated := created.Clone()
	updated.Content = "1. Do the thing\n2. Verify"
	updated.Version = 2
	updated.UpdatedAt = created.UpdatedAt.Add(time.Minute)
	if err := store.Update(ctx, updated, created.Version); err != nil {
		t.Fatalf("Update: %v", err)
	}

	afterUpdate, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if afterUpdate.Version != 2 || afterUpdate.Status != StatusDraft {
		t.Fatalf("updated plan = v%d %s, want v2 draft", afterUpdate.Version, afterUpdate.Status)
	}

	committed, err := store.Commit(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if committed.Version != 2 || committed.Status != StatusSaved {
		t.Fatalf("committed plan = v%d %s, want v2 saved", committed.Version, committed.Status)
	}
}

func TestMemoryStoreUnknownID(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	if err := store.Update(ctx, newDraftPlan("missing"), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update error = %v, want ErrNotFound", err)
	}
	if _, err := store.Commit(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Commit error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newDraftPlan("plan-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first := newDraftPlan("plan-1")
	first.Version = 2
	if err := store.Update(ctx, first, 1); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	// A second writer still holding version 1 must be rejected.
	stale := newDraftPlan("plan-1")
	stale.Version = 2
	if err := store.Update(ctx, stale, 1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale Update error = %v, want ErrVersionConflict", err)
	}

	current, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.Version != 2 {
		t.Fatalf("version = %d, want 2 (stale write must not land)", current.Version)
	}
}

func TestMemoryStoreEditAfterCommit(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newDraftPlan("plan-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Commit(ctx, "plan-1"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Editing a saved plan reopens it as a draft at the next version.
	reopened := newDraftPlan("plan-1")
	reopened.Version = 2
	reopened.Status = StatusDraft
	if err := store.Update(ctx, reopened, 1); err != nil {
		t.Fatalf("Update after commit: %v", err)
	}

	current, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.Version != 2 || current.Status != StatusDraft {
		t.Fatalf("plan = v%d %s, want v2 draft", current.Version, current.Status)
	}
}

func TestMemoryStoreDoesNotAliasCallerMemory(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	original := newDraftPlan("plan-1")
	if err := store.Create(ctx, original); err != nil {
		t.Fatalf("Create: %v", err)
	}
	original.Content = "mutated after create"

	stored, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Content != "1. Do the thing" {
		t.Fatalf("stored content = %q, caller mutation leaked into the store", stored.Content)
	}

	stored.Content = "mutated after get"
	again, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get again: %v", err)
	}
	if again.Content != "1. Do the thing" {
		t.Fatalf("stored content = %q, returned plan aliases store memory", again.Content)
	}
}
