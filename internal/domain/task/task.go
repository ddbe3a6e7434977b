package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrInvalidStatus = errors.New("invalid status value")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Open reports whether the task still counts against phone uniqueness.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

type Task struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenant_id"`
	FirstName       string     `json:"first_name"`
	Phone           string     `json:"phone"`
	Notes           string     `json:"notes"`
	Status          Status     `json:"status"`
	AssignedAgentID *uuid.UUID `json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func New(tenantID uuid.UUID, firstName, phone, notes string, agentID uuid.UUID) Task {
	return Task{
		ID:              uuid.New(),
		TenantID:        tenantID,
		FirstName:       firstName,
		Phone:           phone,
		Notes:           notes,
		Status:          StatusPending,
		AssignedAgentID: &agentID,
		CreatedAt:       time.Now().UTC(),
	}
}

// Transition sets the status and maintains CompletedAt: stamped on entry into
// completed, cleared for every other status.
func (t *Task) Transition(to Status, now time.Time) error {
	if !to.Valid() {
		return ErrInvalidStatus
	}
	if to == StatusCompleted {
		if t.Status != StatusCompleted || t.CompletedAt == nil {
			ts := now.UTC()
			t.CompletedAt = &ts
		}
	} else {
		t.CompletedAt = nil
	}
	t.Status = to
	return nil
}

type ListFilters struct {
	TenantID    uuid.UUID
	Status      *Status
	AssignedTo  *uuid.UUID
	OldestFirst bool // ORDER BY created_at ASC (default is DESC)
}
