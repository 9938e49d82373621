package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workspace-chat/backend/internal/model"
)

const (
	// Time allowed to write a frame to the server.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the server.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from the server.
	maxFrameSize = 64 * 1024
)

// ErrMalformedFrame marks an inbound message that is not a valid frame.
// The connection stays usable after it.
var ErrMalformedFrame = errors.New("malformed frame")

// Conn is one established connection.
type Conn interface {
	ReadFrame() (model.Frame, error)
	WriteFrame(frame model.Frame) error
	Close() error
}

// Transport establishes workspace-scoped connections.
type Transport interface {
	Dial(ctx context.Context, workspaceID string, principal *model.Principal) (Conn, error)
}

// WebSocketTransport dials the relay's WebSocket endpoint.
type WebSocketTransport struct {
	URL    string
	Dialer *websocket.Dialer
}

// NewWebSocketTransport creates a transport for a ws:// or wss:// endpoint.
func NewWebSocketTransport(endpoint string) *WebSocketTransport {
	return &WebSocketTransport{
		URL: endpoint,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// Dial opens a WebSocket connection on behalf of principal.
func (t *WebSocketTransport) Dial(ctx context.Context, workspaceID string, principal *model.Principal) (Conn, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}
	q := u.Query()
	q.Set("workspaceId", workspaceID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("X-User-ID", principal.UserID)
	header.Set("X-User-Name", principal.Name)
	if principal.Token != "" {
		header.Set("Authorization", "Bearer "+principal.Token)
	}

	ws, resp, err := t.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", u.Host, err)
	}

	c := &wsConn{conn: ws, done: make(chan struct{})}
	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop()
	return c, nil
}

type wsConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) ReadFrame() (model.Frame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return model.Frame{}, err
	}
	var frame model.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return model.Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Event == "" {
		return model.Frame{}, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	}
	return frame, nil
}

func (c *wsConn) WriteFrame(frame model.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
