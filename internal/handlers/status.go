package handlers

import (
	"net/http"
)

// Poll channel ids shared between the wiring and the refresh endpoint.
const (
	ChannelRelationships = "relationships"
	ChannelNotifications = "notifications"
)

// StatusHandler reports engine health and connectivity, and accepts manual
// refresh triggers.
type StatusHandler struct {
	Connectivity ConnectivityStatus
	Scheduler    Refresher
}

// Health implements GET /healthz.
func (StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /v1/status.
func (h StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"online": h.Connectivity.IsOnline(),
		"polling": map[string]bool{
			ChannelRelationships: !h.Scheduler.Suppressed(ChannelRelationships),
			ChannelNotifications: !h.Scheduler.Suppressed(ChannelNotifications),
		},
	})
}

// Refresh handles POST /v1/refresh: a manual pull-to-refresh for both
// channels, funneled through the scheduler's single-flight gate so it cannot
// race a timer tick.
func (h StatusHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	started := make(map[string]bool, 2)
	for _, channel := range []string{ChannelRelationships, ChannelNotifications} {
		ran, err := h.Scheduler.Tick(channel)
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		started[channel] = ran
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]any{"started": started})
}
