package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, familyID string, userID int64) *Client {
	return &Client{
		hub:      hub,
		send:     make(chan []byte, sendBufferSize),
		familyID: familyID,
		userID:   userID,
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

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "fam-1", 1)
	c2 := mockClient(hub, "fam-2", 2)

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

func TestBroadcastStaysInFamily(t *testing.T) {
	hub := NewHub(slog.Default())

	mom := mockClient(hub, "fam-1", 1)
	sam := mockClient(hub, "fam-1", 2)
	other := mockClient(hub, "fam-2", 3)
	for _, c := range []*Client{mom, sam, other} {
		hub.Register(c)
	}

	hub.Broadcast("fam-1", NewMessage("task", "approved", 42, map[string]any{"points": float64(5)}))

	for _, c := range []*Client{mom, sam} {
		got, ok := receive(t, c)
		if !ok {
			t.Fatal("timeout waiting for message")
		}
		if got.Type != "task_approved" || got.ID != 42 {
			t.Errorf("got %+v", got)
		}
	}
	if _, ok := receive(t, other); ok {
		t.Error("message leaked to another family")
	}
}

func TestSendToUsers(t *testing.T) {
	hub := NewHub(slog.Default())

	mom := mockClient(hub, "fam-1", 1)
	sam := mockClient(hub, "fam-1", 2)
	hub.Register(mom)
	hub.Register(sam)

	hub.SendToUsers("fam-1", []int64{2}, NewMessage("order", "verified", 7, nil))

	if _, ok := receive(t, sam); !ok {
		t.Error("target user did not receive message")
	}
	if _, ok := receive(t, mom); ok {
		t.Error("non-target user received message")
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "fam-1", 1)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast("fam-1", NewMessage("test", "fill", int64(i), nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast("fam-1", NewMessage("test", "dropped", 999, nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("expected %d buffered messages, got %d", sendBufferSize, got)
	}
	hub.Unregister(c)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := mockClient(hub, "fam-1", int64(i))
			hub.Register(c)
			hub.Broadcast("fam-1", NewMessage("test", "concurrent", 0, nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(i)
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocket(t *testing.T) {
	hub := NewHub(slog.Default())
	tokens := auth.NewTokens("test-secret", time.Hour)
	srv := httptest.NewServer(HandleWebSocket(hub, tokens, slog.Default()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}

	token, _, err := tokens.Issue(&model.User{ID: 2, Role: model.RoleChild, FamilyID: "fam-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	for hub.ClientCount() == 0 {
		if ctx.Err() != nil {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast("fam-1", NewMessage("task", "created", 9, nil))
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "task_created" || got.ID != 9 {
		t.Errorf("got %+v", got)
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("reward", "updated", 5, nil)
	if msg.Type != "reward_updated" || msg.Entity != "reward" || msg.Action != "updated" || msg.ID != 5 {
		t.Errorf("message = %+v", msg)
	}
}
