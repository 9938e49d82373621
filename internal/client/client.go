// Package client implements the request/response half of the chat API:
// history fetches and message sends.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/workspace-chat/backend/internal/model"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 4 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client calls the relay's HTTP API on behalf of one principal.
type Client struct {
	baseURL   string
	principal model.Principal
	http      *http.Client
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a client for baseURL.
func New(baseURL string, principal *model.Principal, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	if principal != nil {
		c.principal = *principal
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchHistory returns one page of a workspace's history. Page 1 holds the
// newest messages; every page is in ascending order.
func (c *Client) FetchHistory(ctx context.Context, workspaceID string, pageNumber, pageSize int) (model.HistoryPage, error) {
	var page model.HistoryPage
	if strings.TrimSpace(workspaceID) == "" {
		return page, model.ErrWorkspaceRequired
	}

	query := url.Values{}
	if pageNumber > 0 {
		query.Set("pageNumber", strconv.Itoa(pageNumber))
	}
	if pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(pageSize))
	}
	err := c.do(ctx, "fetch history", http.MethodGet, messagesPath(workspaceID), query, nil, &page)
	return page, err
}

// SendMessage posts body to a workspace and returns the accepted message.
// The message also arrives on the persistent connection as new_message.
func (c *Client) SendMessage(ctx context.Context, workspaceID, body string) (model.Message, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return model.Message{}, model.ErrWorkspaceRequired
	}

	var resp model.SendMessageResponse
	req := model.SendMessageRequest{Body: body}
	if err := c.do(ctx, "send message", http.MethodPost, messagesPath(workspaceID), nil, req, &resp); err != nil {
		return model.Message{}, err
	}
	return resp.ChatMessage, nil
}

func messagesPath(workspaceID string) string {
	return "/api/workspaces/" + url.PathEscape(workspaceID) + "/messages"
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return &model.RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &model.RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &model.RequestError{Op: op, Status: resp.StatusCode, Err: err}
	}
	c.logger.Debug("request completed", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(op, resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &model.RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.principal.UserID != "" {
		req.Header.Set("X-User-ID", c.principal.UserID)
	}
	if c.principal.Name != "" {
		req.Header.Set("X-User-Name", c.principal.Name)
	}
	if c.principal.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.principal.Token)
	}
}

func decodeError(op string, status int, payload []byte) error {
	var er model.ErrorResponse
	if err := json.Unmarshal(payload, &er); err == nil && er.Error.Code != "" {
		return &model.RequestError{Op: op, Status: status, Code: er.Error.Code, Message: er.Error.Message}
	}
	message := strings.TrimSpace(string(payload))
	if message == "" {
		message = http.StatusText(status)
	}
	return &model.RequestError{Op: op, Status: status, Code: fmt.Sprintf("HTTP_%d", status), Message: message}
}
