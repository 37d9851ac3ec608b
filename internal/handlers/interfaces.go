package handlers

import (
	"context"

	"github.com/campusfeed/syncd/internal/models"
	"github.com/campusfeed/syncd/internal/notifications"
	"github.com/campusfeed/syncd/internal/relationships"
)

// RelationshipEngine captures the graph operations required by the
// relationship handlers.
type RelationshipEngine interface {
	Load(ctx context.Context) (relationships.View, error)
	LoadUser(ctx context.Context, userID string) ([]models.UserSummary, error)
	SendRequest(ctx context.Context, targetID string) error
	Accept(ctx context.Context, targetID string) error
	Reject(ctx context.Context, targetID string) error
	CancelRequest(ctx context.Context, targetID string) error
	Remove(ctx context.Context, targetID string) error
	StateOf(targetID string) models.EdgeState
}

// SuggestionSource serves candidate connections.
type SuggestionSource interface {
	Load(ctx context.Context) ([]models.UserSummary, error)
	Refresh(ctx context.Context) ([]models.UserSummary, error)
}

// NotificationEngine captures the inbox operations required by the
// notification handlers.
type NotificationEngine interface {
	Load(ctx context.Context) (notifications.Inbox, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// Refresher funnels manual refresh triggers into the scheduler's
// single-flight gate.
type Refresher interface {
	Tick(channel string) (bool, error)
	Suppressed(channel string) bool
}

// ConnectivityStatus exposes the monitor's current state.
type ConnectivityStatus interface {
	IsOnline() bool
}
