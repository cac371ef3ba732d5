// Package plan holds the action-plan model and its storage contract. Plans
// are versioned: every edit produces version+1 and resets the plan to draft;
// committing freezes the current version as saved. Editing a saved plan is
// allowed and moves it back to draft at the next version.
package plan

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports an unknown action-plan id.
	ErrNotFound = errors.New("action plan not found")
	// ErrVersionConflict reports a concurrent update: the caller's expected
	// version no longer matches the stored one.
	ErrVersionConflict = errors.New("action plan version conflict")
)

type Status string

const (
	StatusDraft Status = "draft"
	StatusSaved Status = "saved"
)

type ActionPlan struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Status    Status    `json:"status"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists action plans. Implementations must apply Update atomically
// against expectedVersion so concurrent edits surface as ErrVersionConflict
// instead of silently losing writes.
type Store interface {
	// Create inserts a new plan. The caller assigns the id and version 1.
	Create(ctx context.Context, actionPlan *ActionPlan) error
	// Get returns the current state of a plan, or ErrNotFound.
	Get(ctx context.Context, id string) (*ActionPlan, error)
	// Update replaces a plan's content iff its stored version still equals
	// expectedVersion. Returns ErrNotFound or ErrVersionConflict otherwise.
	Update(ctx context.Context, actionPlan *ActionPlan, expectedVersion int) error
	// Commit marks a plan as saved without changing its version and returns
	// the updated plan, or ErrNotFound.
	Commit(ctx context.Context, id string) (*ActionPlan, error)
	Close() error
}

// Clone returns a deep copy so store internals never alias caller memory.
func (p *ActionPlan) Clone() *ActionPlan {
	if p == nil {
		return nil
	}
	copied := *p
	return &copied
}
