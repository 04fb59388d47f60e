// Package chatclient is a small Go client for the chat server: REST login
// and history, plus the realtime websocket.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chat-server/internal/models"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ErrClosed is returned by Send after Close or after the read loop ended.
var ErrClosed = errors.New("chatclient: connection closed")

// Conn is one realtime session.
type Conn struct {
	conn   *websocket.Conn
	events chan models.Event
	done   chan struct{}

	mu  sync.Mutex
	err error

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Dial opens a realtime session. baseURL is the server's http(s) root.
func Dial(ctx context.Context, baseURL, token string) (*Conn, error) {
	wsURL, err := websocketURL(baseURL, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
		return nil, fmt.Errorf("dial %s: %w", baseURL, err)
	}
	conn.SetReadLimit(1 << 20)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:   conn,
		events: make(chan models.Event, 64),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go c.readLoop(readCtx)
	return c, nil
}

func websocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.events)
	defer close(c.done)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, c.conn, &raw); err != nil {
			c.setErr(err)
			return
		}
		ev, err := models.DecodeEvent(raw)
		if err != nil {
			// Unknown event types are skipped so older clients keep working.
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			c.setErr(ctx.Err())
			return
		}
	}
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Err returns why the read loop stopped, if it has.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Events yields decoded server events. The channel is closed when the
// connection ends.
func (c *Conn) Events() <-chan models.Event {
	return c.events
}

// Send writes one command.
func (c *Conn) Send(ctx context.Context, cmd models.Command) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	data, err := models.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, c.conn, json.RawMessage(data))
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
		c.cancel()
	})
	return err
}

// API wraps the REST endpoints.
type API struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is a non-2xx REST response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *API) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	err := a.do(ctx, http.MethodPost, "/login", models.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := a.do(ctx, http.MethodPost, "/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Conversation(ctx context.Context, peerID string, limit int) ([]*models.Message, error) {
	var out []*models.Message
	path := fmt.Sprintf("/conversations/%s/messages?limit=%d", url.PathEscape(peerID), limit)
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) GroupHistory(ctx context.Context, groupID string, limit int) ([]*models.Message, error) {
	var out []*models.Message
	path := fmt.Sprintf("/groups/%s/messages?limit=%d", url.PathEscape(groupID), limit)
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) Online(ctx context.Context) ([]models.PresenceRecord, error) {
	var out struct {
		Users []models.PresenceRecord `json:"users"`
	}
	if err := a.do(ctx, http.MethodGet, "/presence/online", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}
