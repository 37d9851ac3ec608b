package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campusfeed/syncd/internal/api"
	"github.com/campusfeed/syncd/internal/logging"
	"github.com/campusfeed/syncd/internal/notifications"
	"github.com/campusfeed/syncd/internal/relationships"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError maps engine errors onto HTTP statuses for the local API.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	var apiErr *api.Error

	switch {
	case errors.Is(err, api.ErrConflict):
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "this action is no longer valid"})
	case errors.Is(err, api.ErrOffline), errors.Is(err, api.ErrTimeout):
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "offline"})
	case errors.Is(err, api.ErrUnauthorized):
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
	case errors.Is(err, notifications.ErrUnknownNotification):
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "unknown notification"})
	case errors.Is(err, relationships.ErrClosed), errors.Is(err, notifications.ErrClosed):
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "engine shutting down"})
	case errors.As(err, &apiErr):
		respondJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": apiErr.Error()})
	default:
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
