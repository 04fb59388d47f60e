package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-server/internal/auth"
	"chat-server/internal/config"
	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/internal/realtime"
	"chat-server/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	hub  *realtime.Hub
	db   *database.MemoryDB
	auth *auth.Service
}

func newTestServer(t *testing.T, rt config.RealtimeConfig) *testServer {
	t.Helper()
	db := database.NewMemoryDB()
	cfg := &config.Config{Env: "test", Realtime: rt}
	cfg.JWT.Secret = []byte("test-secret")
	cfg.JWT.ExpiresIn = time.Hour

	hub := realtime.NewHub(db, db, rt)
	authService := auth.NewService(db, cfg)
	router := NewRouter(Deps{
		Auth:           authService,
		Hub:            hub,
		Groups:         services.NewGroupService(db, hub),
		Messages:       services.NewMessageService(db),
		AllowedOrigins: []string{"*"},
		Log:            zerolog.Nop(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub, db: db, auth: authService}
}

func (ts *testServer) register(t *testing.T, name string) *models.LoginResponse {
	t.Helper()
	resp, err := ts.auth.Register(context.Background(), &models.RegisterRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return resp
}

func (ts *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent reads frames until one decodes, or the deadline passes.
func readEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) (models.Event, error) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return models.DecodeEvent(data)
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	ts := newTestServer(t, config.DefaultRealtime())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, ts.hub.SessionCount())
}

func TestWebSocketSnapshotThenDirectMessage(t *testing.T) {
	ts := newTestServer(t, config.DefaultRealtime())
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	a := ts.dial(t, alice.Token)
	ev, err := readEvent(t, a, 2*time.Second)
	require.NoError(t, err)
	require.IsType(t, &models.OnlineUsersSnapshot{}, ev)

	b := ts.dial(t, bob.Token)
	ev, err = readEvent(t, b, 2*time.Second)
	require.NoError(t, err)
	snap := ev.(*models.OnlineUsersSnapshot)
	assert.Len(t, snap.Users, 2)

	ev, err = readEvent(t, a, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, bob.User.ID, ev.(*models.PresenceChanged).UserID)

	data, err := models.EncodeCommand(models.SendDirect{SendRequest: models.SendRequest{RecipientID: bob.User.ID, Body: "over the wire"}})
	require.NoError(t, err)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, data))

	ev, err = readEvent(t, a, 2*time.Second)
	require.NoError(t, err)
	delivered, ok := ev.(*models.Delivered)
	require.True(t, ok, "got %T", ev)

	ev, err = readEvent(t, b, 2*time.Second)
	require.NoError(t, err)
	recv, ok := ev.(*models.Receive)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, delivered.Message.ID, recv.Message.ID)
	assert.Equal(t, "over the wire", recv.Message.Body)
}

// A peer that stops answering pings is deregistered after the liveness
// timeout, and observers see exactly one offline transition.
func TestLivenessTimeoutDeregisters(t *testing.T) {
	rt := config.DefaultRealtime()
	rt.PongWait = 300 * time.Millisecond
	rt.PingPeriod = 100 * time.Millisecond
	rt.WriteWait = time.Second
	ts := newTestServer(t, rt)

	watcher := ts.register(t, "watcher")
	silent := ts.register(t, "silent")

	w := ts.dial(t, watcher.Token)
	_, err := readEvent(t, w, 2*time.Second) // snapshot
	require.NoError(t, err)

	// Never read from this connection, so pings go unanswered.
	ts.dial(t, silent.Token)

	var transitions []*models.PresenceChanged
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := readEvent(t, w, time.Until(deadline))
		if err != nil {
			break
		}
		if pc, ok := ev.(*models.PresenceChanged); ok && pc.UserID == silent.User.ID {
			transitions = append(transitions, pc)
			if !pc.IsOnline {
				break
			}
		}
	}

	require.Len(t, transitions, 2)
	assert.True(t, transitions[0].IsOnline)
	assert.False(t, transitions[1].IsOnline)
	assert.False(t, ts.hub.IsOnline(silent.User.ID))
	assert.True(t, ts.hub.IsOnline(watcher.User.ID), "the watcher answers pings while reading")

	// Nothing else about the silent user arrives afterwards.
	for {
		ev, err := readEvent(t, w, 500*time.Millisecond)
		if err != nil {
			break
		}
		if pc, ok := ev.(*models.PresenceChanged); ok {
			assert.NotEqual(t, silent.User.ID, pc.UserID)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, config.DefaultRealtime())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var health struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health.Status)
	assert.Zero(t, health.Sessions)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "chat_http_requests_total")
}

func TestRESTRequiresToken(t *testing.T) {
	ts := newTestServer(t, config.DefaultRealtime())

	resp, err := http.Get(ts.URL + "/presence/online")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGroupFlowOverREST(t *testing.T) {
	ts := newTestServer(t, config.DefaultRealtime())
	owner := ts.register(t, "owner")
	bob := ts.register(t, "bob")

	do := func(method, path, token, body string) *http.Response {
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := do(http.MethodPost, "/groups", owner.Token, `{"name":"core"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var group models.Group
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&group))

	resp = do(http.MethodGet, "/groups/"+group.ID+"/messages", bob.Token, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(http.MethodPost, "/groups/"+group.ID+"/members", bob.Token, `{"user_id":"`+bob.User.ID+`"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(http.MethodPost, "/groups/"+group.ID+"/members", owner.Token, `{"user_id":"`+bob.User.ID+`"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(http.MethodGet, "/groups/"+group.ID+"/members", bob.Token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var members []models.Member
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&members))
	assert.Len(t, members, 2)

	resp = do(http.MethodGet, "/groups/missing/messages", bob.Token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(http.MethodDelete, "/groups/"+group.ID+"/members/"+bob.User.ID, bob.Token, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(http.MethodGet, "/users/"+owner.User.ID+"/presence", bob.Token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "owner never connected")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, statusFor(realtime.Unauthorized("x")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(realtime.PersistenceFailed(assert.AnError, "x")))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(realtime.ErrRateLimited))
	assert.Equal(t, http.StatusNotFound, statusFor(services.ErrGroupMissing))
	assert.Equal(t, http.StatusUnauthorized, statusFor(auth.ErrInvalidCredentials))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
