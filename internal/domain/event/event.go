package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeTasksUploaded      Type = "tasks_uploaded"
	TypeTaskUpdated        Type = "task_updated"
	TypeTaskDeleted        Type = "task_deleted"
	TypeTasksRedistributed Type = "tasks_redistributed"
	TypeAgentCreated       Type = "agent_created"
	TypeAgentUpdated       Type = "agent_updated"
	TypeAgentDeleted       Type = "agent_deleted"
)

// Channel is a domain-scoped Postgres NOTIFY channel.
// All event types within a domain share one LISTEN connection.
type Channel string

const (
	ChannelTask  Channel = "task"
	ChannelAgent Channel = "agent"
)

var Channels = []Channel{ChannelTask, ChannelAgent}

var typeToChannel = map[Type]Channel{
	TypeTasksUploaded:      ChannelTask,
	TypeTaskUpdated:        ChannelTask,
	TypeTaskDeleted:        ChannelTask,
	TypeTasksRedistributed: ChannelTask,
	TypeAgentCreated:       ChannelAgent,
	TypeAgentUpdated:       ChannelAgent,
	TypeAgentDeleted:       ChannelAgent,
}

// ChannelFor returns the domain channel for a given event type.
func ChannelFor(t Type) Channel { return typeToChannel[t] }

// Event carries identifiers only, not full state.
// Subscribers fetch fresh state from the appropriate repository.
type Event struct {
	Type      Type      `json:"type"`
	TenantID  uuid.UUID `json:"tenant_id"`
	EntityID  uuid.UUID `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
}

func New(eventType Type, tenantID, entityID uuid.UUID) Event {
	return Event{
		Type:      eventType,
		TenantID:  tenantID,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
}
