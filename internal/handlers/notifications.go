package handlers

import (
	"net/http"
	"strings"

	"github.com/campusfeed/syncd/internal/models"
	"github.com/campusfeed/syncd/internal/notifications"
)

// NotificationHandler exposes the synchronized inbox to UI consumers.
type NotificationHandler struct {
	Inbox NotificationEngine
}

type notificationEntry struct {
	models.Notification
	Route notifications.Route `json:"route"`
}

type inboxResponse struct {
	Notifications []notificationEntry `json:"notifications"`
	UnreadCount   int                 `json:"unreadCount"`
	Source        string              `json:"source"`
	Stale         bool                `json:"stale"`
	Offline       bool                `json:"offline"`
}

// List handles GET /v1/notifications. Each entry carries its resolved
// click-through route so consumers need no routing logic of their own.
func (h NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	inbox, err := h.Inbox.Load(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	resp := inboxResponse{
		Notifications: make([]notificationEntry, 0, len(inbox.Notifications)),
		UnreadCount:   inbox.UnreadCount,
		Source:        inbox.Source,
		Stale:         inbox.Stale,
		Offline:       inbox.Offline,
	}
	for _, n := range inbox.Notifications {
		resp.Notifications = append(resp.Notifications, notificationEntry{Notification: n, Route: notifications.Resolve(n)})
	}

	respondJSON(ctx, w, http.StatusOK, resp)
}

// MarkRead handles PUT /v1/notifications/{id}/read.
func (h NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "notification id is required"})
		return
	}

	if err := h.Inbox.MarkRead(ctx, id); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"id": id})
}

// MarkAllRead handles PUT /v1/notifications/read-all.
func (h NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Inbox.MarkAllRead(ctx); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}
