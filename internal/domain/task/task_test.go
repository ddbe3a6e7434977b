package task_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/alanyang/call-dispatch/internal/domain/task"
)

func TestStatusValid(t *testing.T) {
	tests := []struct {
		name string
		s    Status
		want bool
	}{
		{name: "pending", s: StatusPending, want: true},
		{name: "in-progress", s: StatusInProgress, want: true},
		{name: "completed", s: StatusCompleted, want: true},
		{name: "failed", s: StatusFailed, want: true},
		{name: "underscore spelling rejected", s: Status("in_progress"), want: false},
		{name: "empty rejected", s: Status(""), want: false},
		{name: "garbage rejected", s: Status("done"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.Valid())
		})
	}
}

func TestStatusOpen(t *testing.T) {
	assert.True(t, StatusPending.Open())
	assert.True(t, StatusInProgress.Open())
	assert.False(t, StatusCompleted.Open())
	assert.False(t, StatusFailed.Open())
}

func TestNew(t *testing.T) {
	tenantID, agentID := uuid.New(), uuid.New()
	tk := New(tenantID, "Jane", "5551234567", "", agentID)

	assert.Equal(t, StatusPending, tk.Status)
	assert.Equal(t, tenantID, tk.TenantID)
	require.NotNil(t, tk.AssignedAgentID)
	assert.Equal(t, agentID, *tk.AssignedAgentID)
	assert.Nil(t, tk.CompletedAt)
}

func TestTransition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("completed stamps completedAt", func(t *testing.T) {
		tk := Task{Status: StatusInProgress}
		require.NoError(t, tk.Transition(StatusCompleted, now))
		require.NotNil(t, tk.CompletedAt)
		assert.Equal(t, now, *tk.CompletedAt)
	})

	t.Run("completed again keeps original timestamp", func(t *testing.T) {
		first := now.Add(-time.Hour)
		tk := Task{Status: StatusCompleted, CompletedAt: &first}
		require.NoError(t, tk.Transition(StatusCompleted, now))
		assert.Equal(t, first, *tk.CompletedAt)
	})

	t.Run("leaving completed clears completedAt", func(t *testing.T) {
		tk := Task{Status: StatusCompleted, CompletedAt: &now}
		require.NoError(t, tk.Transition(StatusFailed, now))
		assert.Nil(t, tk.CompletedAt)
		assert.Equal(t, StatusFailed, tk.Status)
	})

	t.Run("invalid status rejected and task untouched", func(t *testing.T) {
		tk := Task{Status: StatusPending}
		err := tk.Transition(Status("archived"), now)
		assert.ErrorIs(t, err, ErrInvalidStatus)
		assert.Equal(t, StatusPending, tk.Status)
	})
}
