package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/classbook/internal/model"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, tenantID *int64) *Client {
	return &Client{
		hub:      hub,
		tenantID: tenantID,
		send:     make(chan []byte, sendBufferSize),
	}
}

func tenant(id int64) *int64 { return &id }

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, tenant(1))
	c2 := mockClient(hub, nil)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	// Should not panic
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got, true
	case <-time.After(50 * time.Millisecond):
		return Message{}, false
	}
}

func TestBroadcastTenantScope(t *testing.T) {
	hub := NewHub(slog.Default())

	own := mockClient(hub, tenant(1))
	other := mockClient(hub, tenant(2))
	operator := mockClient(hub, nil)
	for _, c := range []*Client{own, other, operator} {
		hub.Register(c)
	}

	hub.NotifyBackupStatus("b-1", 1, model.BackupStatusRestoring)

	for name, c := range map[string]*Client{"own tenant": own, "operator": operator} {
		got, ok := receive(t, c)
		if !ok {
			t.Fatalf("%s: timeout waiting for message", name)
		}
		if got.Type != "backup_status" {
			t.Errorf("%s: type = %q, want backup_status", name, got.Type)
		}
		if got.ID != "b-1" || got.TenantID != 1 {
			t.Errorf("%s: id = %q tenant = %d", name, got.ID, got.TenantID)
		}
		if got.Extra["status"] != string(model.BackupStatusRestoring) {
			t.Errorf("%s: status = %v", name, got.Extra["status"])
		}
	}

	if _, ok := receive(t, other); ok {
		t.Error("client of another tenant received the message")
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(NewMessage("backup", "status", "b-1", 1, nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, tenant(3))
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", "", 3, nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("test", "dropped", "", 3, nil))

	count := 0
	for len(c.send) > 0 {
		<-c.send
		count++
	}
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("backup", "created", "b-9", 4, nil)
	if msg.Type != "backup_created" {
		t.Errorf("expected type backup_created, got %s", msg.Type)
	}
	if msg.Entity != "backup" || msg.Action != "created" {
		t.Errorf("entity/action = %s/%s", msg.Entity, msg.Action)
	}
	if msg.ID != "b-9" || msg.TenantID != 4 {
		t.Errorf("id = %s tenant = %d", msg.ID, msg.TenantID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c := mockClient(hub, tenant(id%3))
			hub.Register(c)
			hub.Broadcast(NewMessage("test", "concurrent", "", id%3, nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i))
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
