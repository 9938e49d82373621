package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/workspace-chat/backend/internal/model"
)

func newTestClient(userID string) *Client {
	return NewClient(nil, model.Principal{UserID: userID, Name: "User " + userID})
}

// receiveWithTimeout reads one queued message from the client.
func receiveWithTimeout(t *testing.T, client *Client, timeout time.Duration) []byte {
	t.Helper()
	select {
	case data := <-client.SendChan():
		return data
	case <-time.After(timeout):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func assertNothingQueued(t *testing.T, client *Client) {
	t.Helper()
	if n := len(client.SendChan()); n != 0 {
		t.Fatalf("expected no queued messages, got %d", n)
	}
}

func TestHubBroadcastSkipsSender(t *testing.T) {
	hub := NewHub("ws-1")
	defer hub.Close()

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	hub.Register(alice)
	hub.Register(bob)

	if hub.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.ClientCount())
	}

	if n := hub.Broadcast([]byte("hello"), alice); n != 1 {
		t.Errorf("expected 1 recipient, got %d", n)
	}
	if got := string(receiveWithTimeout(t, bob, 100*time.Millisecond)); got != "hello" {
		t.Errorf("bob received %q", got)
	}
	assertNothingQueued(t, alice)

	if n := hub.Broadcast([]byte("all"), nil); n != 2 {
		t.Errorf("expected 2 recipients, got %d", n)
	}

	if remaining := hub.Unregister(alice); remaining != 1 {
		t.Errorf("expected 1 remaining, got %d", remaining)
	}
	if alice.IsClosed() {
		t.Error("unregister should not close the client")
	}
}

func TestHubBroadcastFrame(t *testing.T) {
	hub := NewHub("ws-1")
	defer hub.Close()

	bob := newTestClient("bob")
	hub.Register(bob)

	frame, err := model.NewFrame(model.EventUserTyping, model.TypingPayload{UserID: "alice", UserName: "Alice"})
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}
	if _, err := hub.BroadcastFrame(frame, nil); err != nil {
		t.Fatalf("BroadcastFrame failed: %v", err)
	}

	var got model.Frame
	if err := json.Unmarshal(receiveWithTimeout(t, bob, 100*time.Millisecond), &got); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	if got.Event != model.EventUserTyping {
		t.Errorf("expected user_typing, got %s", got.Event)
	}
}

func TestClientSlowConsumerIsClosed(t *testing.T) {
	client := newTestClient("slow")
	for i := 0; i < sendBuffer+1; i++ {
		client.Send([]byte("x"))
	}
	if !client.IsClosed() {
		t.Fatal("expected client to be closed once its buffer overflowed")
	}
	// Sends after close are dropped.
	client.Send([]byte("late"))
	client.Close()
}

func TestHubManagerJoinMovesClient(t *testing.T) {
	m := NewHubManager()
	defer m.Close()

	alice := newTestClient("alice")
	bob := newTestClient("bob")

	joined, left := m.Join(alice, "ws-1")
	if joined.WorkspaceID() != "ws-1" || left != nil {
		t.Fatalf("unexpected join result: %v %v", joined, left)
	}
	m.Join(bob, "ws-1")

	again, left := m.Join(alice, "ws-1")
	if again != joined || left != nil {
		t.Error("joining the current room should be a no-op")
	}

	moved, left := m.Join(alice, "ws-2")
	if moved.WorkspaceID() != "ws-2" {
		t.Errorf("expected ws-2, got %s", moved.WorkspaceID())
	}
	if left != joined {
		t.Error("expected ws-1 to be reported as left")
	}
	if joined.Has(alice) {
		t.Error("alice should no longer be in ws-1")
	}
	if m.Room(alice) != moved {
		t.Error("Room should return ws-2")
	}
	if m.Count() != 2 {
		t.Errorf("expected 2 rooms, got %d", m.Count())
	}
}

func TestHubManagerDiscardsEmptyRooms(t *testing.T) {
	m := NewHubManager()
	defer m.Close()

	alice := newTestClient("alice")
	m.Join(alice, "ws-1")

	if left := m.Leave(alice); left == nil || left.WorkspaceID() != "ws-1" {
		t.Fatalf("expected to leave ws-1, got %v", left)
	}
	if m.Get("ws-1") != nil {
		t.Error("empty room should be discarded")
	}
	if m.Leave(alice) != nil {
		t.Error("second leave should report no room")
	}
	if m.Room(alice) != nil {
		t.Error("client should have no room")
	}
}

func TestHubManagerCloseClosesClients(t *testing.T) {
	m := NewHubManager()
	alice := newTestClient("alice")
	m.Join(alice, "ws-1")

	m.Close()

	if !alice.IsClosed() {
		t.Error("expected client to be closed")
	}
	if m.Count() != 0 {
		t.Errorf("expected no rooms, got %d", m.Count())
	}
	if m.Leave(alice) != nil {
		t.Error("closed client should have no room")
	}
}

// Any sequence of joins and leaves keeps each client in at most one room,
// keeps every room non-empty and agrees with the per-client view.
func TestHubManagerMembershipProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	type op struct {
		Client int
		Room   int // negative means leave
	}
	genOp := gopter.CombineGens(gen.IntRange(0, 3), gen.IntRange(-1, 2)).Map(func(v []interface{}) op {
		return op{Client: v[0].(int), Room: v[1].(int)}
	})

	properties.Property("membership stays consistent", prop.ForAll(
		func(ops []op) bool {
			m := NewHubManager()
			defer m.Close()

			clients := make([]*Client, 4)
			for i := range clients {
				clients[i] = newTestClient(string(rune('a' + i)))
			}
			rooms := []string{"ws-0", "ws-1", "ws-2"}

			for _, o := range ops {
				if o.Room < 0 {
					m.Leave(clients[o.Client])
				} else {
					m.Join(clients[o.Client], rooms[o.Room])
				}
			}

			total := 0
			for _, ws := range rooms {
				hub := m.Get(ws)
				if hub == nil {
					continue
				}
				if hub.ClientCount() == 0 {
					return false
				}
				total += hub.ClientCount()
			}

			members := 0
			for _, c := range clients {
				hub := m.Room(c)
				if hub == nil {
					continue
				}
				if !hub.Has(c) || m.Get(hub.WorkspaceID()) != hub {
					return false
				}
				members++
			}
			return total == members
		},
		gen.SliceOf(genOp),
	))

	properties.TestingRun(t)
}

func TestDecodeWorkspaceID(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
		ok   bool
	}{
		{"bare string", `"ws-1"`, "ws-1", true},
		{"object", `{"workspaceId":"ws-2"}`, "ws-2", true},
		{"padded", `"  ws-3 "`, "ws-3", true},
		{"blank", `"  "`, "", false},
		{"empty object", `{}`, "", false},
		{"number", `42`, "", false},
		{"missing", ``, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := decodeWorkspaceID(json.RawMessage(tc.data))
			if got != tc.want || ok != tc.ok {
				t.Errorf("decodeWorkspaceID(%s) = %q, %v; want %q, %v", tc.data, got, ok, tc.want, tc.ok)
			}
		})
	}
}
