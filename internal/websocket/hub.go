package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/classbook/internal/model"
)

// Message is a real-time notification pushed to connected clients.
type Message struct {
	Type     string         `json:"type"`
	Entity   string         `json:"entity"`
	Action   string         `json:"action"`
	ID       string         `json:"id,omitempty"`
	TenantID int64          `json:"tenant_id"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action, id string, tenantID int64, extra map[string]any) Message {
	return Message{
		Type:     fmt.Sprintf("%s_%s", entity, action),
		Entity:   entity,
		Action:   action,
		ID:       id,
		TenantID: tenantID,
		Extra:    extra,
	}
}

// BackupStatusMessage announces a backup status transition.
func BackupStatusMessage(backupID string, tenantID int64, status model.BackupStatus) Message {
	return NewMessage("backup", "status", backupID, tenantID, map[string]any{"status": string(status)})
}

// Hub maintains the set of active WebSocket clients and fans messages out
// to the clients allowed to see them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every client scoped to msg.TenantID and to every
// unscoped (operator) client.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.sees(msg.TenantID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// buffer full, drop
		}
	}
}

// NotifyBackupStatus matches snapshot.StatusFunc.
func (h *Hub) NotifyBackupStatus(backupID string, tenantID int64, status model.BackupStatus) {
	h.Broadcast(BackupStatusMessage(backupID, tenantID, status))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
