package models

import "time"

// UserSummary is an immutable snapshot of another account as reported by the
// platform. It is never mutated locally; a changed profile shows up through a
// full refetch.
type UserSummary struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	Handle       string `json:"handle"`
	AvatarRef    string `json:"avatarRef"`
	School       string `json:"school,omitempty"`
	OnlineStatus string `json:"onlineStatus"`
}

// EdgeState describes the relationship between the current user and another.
type EdgeState string

const (
	EdgeNone            EdgeState = "none"
	EdgePendingOutgoing EdgeState = "pending_outgoing"
	EdgePendingIncoming EdgeState = "pending_incoming"
	EdgeAccepted        EdgeState = "accepted"
)

// FriendshipEdge materializes one relationship record. A given user id holds
// at most one edge at a time; the state decides which of the three view
// sublists it belongs to.
type FriendshipEdge struct {
	ID        string      `json:"id"`
	User      UserSummary `json:"user"`
	State     EdgeState   `json:"state"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Relationships is the three-way split of the current user's social graph.
type Relationships struct {
	Friends         []FriendshipEdge `json:"friends"`
	PendingIncoming []FriendshipEdge `json:"pendingIncoming"`
	PendingOutgoing []FriendshipEdge `json:"pendingOutgoing"`
}

// Notification is one inbox entry owned by the current user. Entries are
// created server-side and only ever transition isRead false to true here.
type Notification struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
	RelatedEntityType string    `json:"relatedEntityType"`
	RelatedEntityID   string    `json:"relatedEntityId"`
	IsRead            bool      `json:"isRead"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Role identifies the viewing account's privilege level.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Notification types understood by the click-through router.
const (
	NotificationTypeFriendRequest = "friend_request"
	NotificationTypeMessage       = "message"
	NotificationTypeComment       = "comment"
	NotificationTypePost          = "post"
)
