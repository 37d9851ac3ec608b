package handlers

import (
	"net/http"

	"github.com/campusfeed/syncd/internal/middleware"
)

// Dependencies aggregates collaborators required by the local HTTP API.
type Dependencies struct {
	Graph        RelationshipEngine
	Suggestions  SuggestionSource
	Inbox        NotificationEngine
	Scheduler    Refresher
	Connectivity ConnectivityStatus
	Limiter      middleware.RateLimiter
}

// RegisterRoutes wires the local API into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	status := StatusHandler{Connectivity: deps.Connectivity, Scheduler: deps.Scheduler}
	rels := RelationshipHandler{Graph: deps.Graph, Suggestions: deps.Suggestions, Limiter: deps.Limiter}
	notifs := NotificationHandler{Inbox: deps.Inbox}

	mux.HandleFunc("GET /healthz", status.Health)
	mux.HandleFunc("GET /v1/status", status.Status)
	mux.HandleFunc("POST /v1/refresh", status.Refresh)

	mux.HandleFunc("GET /v1/relationships", rels.List)
	mux.HandleFunc("GET /v1/relationships/user/{id}", rels.UserFriends)
	mux.HandleFunc("GET /v1/suggestions", rels.Suggest)
	mux.HandleFunc("POST /v1/relationships", rels.Create)
	mux.HandleFunc("PUT /v1/relationships/{target}/accept", rels.Accept)
	mux.HandleFunc("PUT /v1/relationships/{target}/reject", rels.Reject)
	mux.HandleFunc("DELETE /v1/relationships/{target}", rels.Delete)

	mux.HandleFunc("GET /v1/notifications", notifs.List)
	mux.HandleFunc("PUT /v1/notifications/{id}/read", notifs.MarkRead)
	mux.HandleFunc("PUT /v1/notifications/read-all", notifs.MarkAllRead)
}
