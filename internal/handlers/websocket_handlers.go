package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"chat-server/internal/realtime"
	ws "chat-server/internal/websocket"
	"chat-server/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	resolver IdentityResolver
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(resolver IdentityResolver, hub *realtime.Hub, allowedOrigins []string) *WebSocketHandlers {
	return &WebSocketHandlers{
		resolver: resolver,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// HandleWebSocket authenticates before upgrading; a bad credential never
// reaches the registry.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := h.resolver.ResolveSessionIdentity(r.Context(), credentialFrom(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, string(realtime.CodeAuthenticationFailed))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, userID)
	logger.Debug("Session %s opened", client.Session())

	go client.WritePump()
	go client.ReadPump()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
