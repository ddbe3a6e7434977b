package agent

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("agent not found")
	ErrDuplicateEmail  = errors.New("agent already exists")
	ErrLastActiveAgent = errors.New("cannot delete the last active agent while it holds tasks")
	ErrMissingFields   = errors.New("all fields are required")
)

const DefaultCountryCode = "+1"

type Agent struct {
	ID            uuid.UUID   `json:"id"`
	TenantID      uuid.UUID   `json:"tenant_id"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	CountryCode   string      `json:"country_code"`
	MobileNumber  string      `json:"mobile_number"`
	IsActive      bool        `json:"is_active"`
	AssignedTasks []uuid.UUID `json:"assigned_tasks"`
	CreatedAt     time.Time   `json:"created_at"`
}

func New(tenantID uuid.UUID, name, email, countryCode, mobileNumber string) Agent {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return Agent{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Name:          strings.TrimSpace(name),
		Email:         strings.ToLower(strings.TrimSpace(email)),
		CountryCode:   strings.TrimSpace(countryCode),
		MobileNumber:  strings.TrimSpace(mobileNumber),
		IsActive:      true,
		AssignedTasks: []uuid.UUID{},
		CreatedAt:     time.Now().UTC(),
	}
}

// Load is the agent's current number of assigned tasks.
func (a *Agent) Load() int {
	return len(a.AssignedTasks)
}

func (a *Agent) HasTask(taskID uuid.UUID) bool {
	for _, id := range a.AssignedTasks {
		if id == taskID {
			return true
		}
	}
	return false
}

// MissingFields reports which identity fields are empty.
func (a *Agent) MissingFields() []string {
	var missing []string
	if a.Name == "" {
		missing = append(missing, "name")
	}
	if a.Email == "" {
		missing = append(missing, "email")
	}
	if a.CountryCode == "" {
		missing = append(missing, "country_code")
	}
	if a.MobileNumber == "" {
		missing = append(missing, "mobile_number")
	}
	return missing
}

// Patch carries optional identity updates. Nil fields are left untouched.
type Patch struct {
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	CountryCode  *string `json:"country_code"`
	MobileNumber *string `json:"mobile_number"`
}

func (a *Agent) Apply(p Patch) {
	if p.Name != nil {
		a.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		a.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.CountryCode != nil {
		a.CountryCode = strings.TrimSpace(*p.CountryCode)
	}
	if p.MobileNumber != nil {
		a.MobileNumber = strings.TrimSpace(*p.MobileNumber)
	}
}

type ListFilters struct {
	TenantID   uuid.UUID
	ActiveOnly bool
	ExcludeID  *uuid.UUID
	Email      *string
}
