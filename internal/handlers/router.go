package handlers

import (
	"net/http"

	"chat-server/internal/auth"
	"chat-server/internal/realtime"
	"chat-server/internal/services"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Auth           *auth.Service
	Hub            *realtime.Hub
	Groups         *services.GroupService
	Messages       *services.MessageService
	AllowedOrigins []string
	Log            zerolog.Logger
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	authHandlers := NewAuthHandlers(d.Auth)
	groupHandlers := NewGroupHandlers(d.Groups, d.Messages)
	messageHandlers := NewMessageHandlers(d.Messages)
	presenceHandlers := NewPresenceHandlers(d.Hub)
	wsHandlers := NewWebSocketHandlers(d.Auth, d.Hub, d.AllowedOrigins)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"sessions": d.Hub.SessionCount(),
		})
	})

	r.Post("/register", authHandlers.Register)
	r.Post("/login", authHandlers.Login)

	// The upgrade authenticates itself so it can answer 401 before registering.
	r.Get("/ws", wsHandlers.HandleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser(d.Auth))

		r.Get("/presence/online", presenceHandlers.Online)
		r.Get("/users/{id}/presence", presenceHandlers.UserPresence)

		r.Get("/conversations/{userId}/messages", messageHandlers.Conversation)

		r.Post("/groups", groupHandlers.CreateGroup)
		r.Get("/groups", groupHandlers.ListGroups)
		r.Get("/groups/{id}/members", groupHandlers.GetMembers)
		r.Post("/groups/{id}/members", groupHandlers.AddMember)
		r.Delete("/groups/{id}/members/{userId}", groupHandlers.RemoveMember)
		r.Get("/groups/{id}/messages", groupHandlers.GetMessages)
	})

	return r
}
