package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/workspace-chat/backend/internal/model"
)

// sendBuffer is the number of outbound frames queued per client.
const sendBuffer = 256

// Client is one WebSocket connection to the relay.
type Client struct {
	conn      *websocket.Conn
	principal model.Principal
	send      chan []byte
	mu        sync.Mutex
	closed    bool

	// room is guarded by the HubManager lock.
	room *Hub
}

// NewClient creates a client for an upgraded connection.
func NewClient(conn *websocket.Conn, principal model.Principal) *Client {
	return &Client{
		conn:      conn,
		principal: principal,
		send:      make(chan []byte, sendBuffer),
	}
}

// Send queues data for the client. A client that cannot keep up is closed.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.closeLocked()
	}
}

// SendFrame encodes and queues a frame.
func (c *Client) SendFrame(frame model.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.Send(data)
	return nil
}

// Close closes the send channel, which ends the write pump.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Principal returns the user the connection belongs to.
func (c *Client) Principal() model.Principal {
	return c.principal
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub holds the clients subscribed to one workspace.
type Hub struct {
	workspaceID string
	clients     map[*Client]bool
	mu          sync.RWMutex
}

// NewHub creates an empty room for the workspace.
func NewHub(workspaceID string) *Hub {
	return &Hub{
		workspaceID: workspaceID,
		clients:     make(map[*Client]bool),
	}
}

// WorkspaceID returns the workspace this room serves.
func (h *Hub) WorkspaceID() string {
	return h.workspaceID
}

// Register adds a client to the room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the room and returns how many remain.
// The client itself stays open.
func (h *Hub) Unregister(client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	return len(h.clients)
}

// Has reports whether client is a member of the room.
func (h *Hub) Has(client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[client]
}

// Broadcast sends data to every member except the given client, which may be nil.
func (h *Hub) Broadcast(data []byte, except *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.clients {
		if client == except {
			continue
		}
		client.Send(data)
		n++
	}
	return n
}

// BroadcastFrame encodes frame once and sends it like Broadcast.
func (h *Hub) BroadcastFrame(frame model.Frame, except *Client) (int, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return 0, err
	}
	return h.Broadcast(data, except), nil
}

// ClientCount returns the number of members.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes every member and empties the room.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

// HubManager owns the workspace rooms. A client belongs to at most one
// room and empty rooms are discarded.
type HubManager struct {
	hubs map[string]*Hub
	mu   sync.RWMutex
}

// NewHubManager creates a new HubManager.
func NewHubManager() *HubManager {
	return &HubManager{
		hubs: make(map[string]*Hub),
	}
}

// Join moves client into the workspace's room. It returns the joined room
// and the room the client left, which is nil when the client was in none
// or was already a member of the target.
func (m *HubManager) Join(client *Client, workspaceID string) (joined, left *Hub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client.room != nil && client.room.workspaceID == workspaceID {
		return client.room, nil
	}
	left = m.leaveLocked(client)

	hub, ok := m.hubs[workspaceID]
	if !ok {
		hub = NewHub(workspaceID)
		m.hubs[workspaceID] = hub
	}
	hub.Register(client)
	client.room = hub
	return hub, left
}

// Leave removes client from its room and returns that room, or nil.
func (m *HubManager) Leave(client *Client) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(client)
}

func (m *HubManager) leaveLocked(client *Client) *Hub {
	hub := client.room
	if hub == nil {
		return nil
	}
	client.room = nil
	if hub.Unregister(client) == 0 {
		delete(m.hubs, hub.workspaceID)
	}
	return hub
}

// Room returns the client's current room, or nil.
func (m *HubManager) Room(client *Client) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return client.room
}

// Get returns the room for the workspace, or nil if nobody is subscribed.
func (m *HubManager) Get(workspaceID string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[workspaceID]
}

// Count returns the number of non-empty rooms.
func (m *HubManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hubs)
}

// Close closes all rooms and their clients.
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hub := range m.hubs {
		hub.mu.RLock()
		for client := range hub.clients {
			client.room = nil
		}
		hub.mu.RUnlock()
		hub.Close()
	}
	m.hubs = make(map[string]*Hub)
}
