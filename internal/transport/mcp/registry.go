package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// SessionRegistry remembers which tenant each MCP session works for, so domain
// events can be pushed to the sessions of the owning tenant.
type SessionRegistry struct {
	mu       sync.RWMutex
	tenants  map[string]uuid.UUID // sessionID → tenant
	sessions map[uuid.UUID]map[string]bool

	// mcpSrv is set after the MCP server is constructed.
	mcpMu  sync.RWMutex
	mcpSrv *mcpserver.MCPServer
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		tenants:  make(map[string]uuid.UUID),
		sessions: make(map[uuid.UUID]map[string]bool),
	}
}

func (r *SessionRegistry) SetMCPServer(s *mcpserver.MCPServer) {
	r.mcpMu.Lock()
	r.mcpSrv = s
	r.mcpMu.Unlock()
}

// Bind attaches a session to a tenant. A session moves when bound again.
func (r *SessionRegistry) Bind(sessionID string, tenantID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.tenants[sessionID]; ok {
		if old == tenantID {
			return
		}
		r.detach(sessionID, old)
	}
	r.tenants[sessionID] = tenantID
	if r.sessions[tenantID] == nil {
		r.sessions[tenantID] = make(map[string]bool)
	}
	r.sessions[tenantID][sessionID] = true
}

// Unregister forgets a closed session and returns the tenant it was bound to.
func (r *SessionRegistry) Unregister(sessionID string) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tenantID, ok := r.tenants[sessionID]
	if !ok {
		return uuid.Nil, false
	}
	r.detach(sessionID, tenantID)
	return tenantID, true
}

func (r *SessionRegistry) detach(sessionID string, tenantID uuid.UUID) {
	delete(r.tenants, sessionID)
	delete(r.sessions[tenantID], sessionID)
	if len(r.sessions[tenantID]) == 0 {
		delete(r.sessions, tenantID)
	}
}

// Sessions returns the number of sessions bound to tenantID.
func (r *SessionRegistry) Sessions(tenantID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[tenantID])
}

// NotifyTenant sends event as a notifications/message to every session of
// tenantID. It is a no-op when none is connected.
func (r *SessionRegistry) NotifyTenant(_ context.Context, tenantID uuid.UUID, event any) error {
	r.mu.RLock()
	targets := make([]string, 0, len(r.sessions[tenantID]))
	for sessionID := range r.sessions[tenantID] {
		targets = append(targets, sessionID)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	r.mcpMu.RLock()
	srv := r.mcpSrv
	r.mcpMu.RUnlock()
	if srv == nil {
		return fmt.Errorf("mcp server not initialized")
	}

	params, err := toParams(event)
	if err != nil {
		return fmt.Errorf("serialize notification: %w", err)
	}

	var lastErr error
	for _, sessionID := range targets {
		if err := srv.SendNotificationToSpecificClient(sessionID, "notifications/message", params); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func toParams(event any) (map[string]any, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return map[string]any{"data": event}, nil
	}
	return params, nil
}
