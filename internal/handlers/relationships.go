package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/campusfeed/syncd/internal/logging"
	"github.com/campusfeed/syncd/internal/middleware"
	"github.com/campusfeed/syncd/internal/models"
)

// RelationshipHandler exposes the synchronized social graph to UI consumers.
type RelationshipHandler struct {
	Graph       RelationshipEngine
	Suggestions SuggestionSource
	Limiter     middleware.RateLimiter
}

// allowMutation guards mutation endpoints per target id, so a stuck consumer
// replaying one intent cannot flood the platform API.
func (h RelationshipHandler) allowMutation(target string) bool {
	if h.Limiter == nil {
		return true
	}
	return h.Limiter.Allow("relationships:" + target)
}

// List handles GET /v1/relationships.
func (h RelationshipHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := h.Graph.Load(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, view)
}

// UserFriends handles GET /v1/relationships/user/{id}.
func (h RelationshipHandler) UserFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.PathValue("id")
	if strings.TrimSpace(userID) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "user id is required"})
		return
	}

	friends, err := h.Graph.LoadUser(ctx, userID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string][]models.UserSummary{"friends": friends})
}

// Create handles POST /v1/relationships.
func (h RelationshipHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req struct {
		TargetID string `json:"targetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid send-request payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.TargetID) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "targetId is required"})
		return
	}
	if !h.allowMutation(req.TargetID) {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts, slow down"})
		return
	}

	if err := h.Graph.SendRequest(ctx, req.TargetID); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{"targetId": req.TargetID, "state": string(models.EdgePendingOutgoing)})
}

// Accept handles PUT /v1/relationships/{target}/accept.
func (h RelationshipHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Graph.Accept)
}

// Reject handles PUT /v1/relationships/{target}/reject.
func (h RelationshipHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Graph.Reject)
}

// Delete handles DELETE /v1/relationships/{target}: it cancels a pending
// outgoing request or unlinks a friend, whichever the edge state implies.
func (h RelationshipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	target := r.PathValue("target")
	if strings.TrimSpace(target) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "target id is required"})
		return
	}
	if !h.allowMutation(target) {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts, slow down"})
		return
	}

	var err error
	if h.Graph.StateOf(target) == models.EdgePendingOutgoing {
		err = h.Graph.CancelRequest(ctx, target)
	} else {
		err = h.Graph.Remove(ctx, target)
	}
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"targetId": target, "state": string(models.EdgeNone)})
}

// Suggest handles GET /v1/suggestions. A refresh=1 query advances to a fresh
// batch instead of reloading the first page.
func (h RelationshipHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		candidates []models.UserSummary
		err        error
	)
	if r.URL.Query().Get("refresh") == "1" {
		candidates, err = h.Suggestions.Refresh(ctx)
	} else {
		candidates, err = h.Suggestions.Load(ctx)
	}
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string][]models.UserSummary{"suggestions": candidates})
}

func (h RelationshipHandler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, target string) error) {
	ctx := r.Context()

	target := r.PathValue("target")
	if strings.TrimSpace(target) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "target id is required"})
		return
	}
	if !h.allowMutation(target) {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts, slow down"})
		return
	}

	if err := op(ctx, target); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"targetId": target, "state": string(h.Graph.StateOf(target))})
}
