package notifications

import "github.com/campusfeed/syncd/internal/models"

// Route is a click-through destination for a notification. It is derived
// purely from the notification's type fields; no network state involved.
type Route struct {
	Destination string `json:"destination"`
	AnchorID    string `json:"anchorId"`
}

// Destinations produced by Resolve.
const (
	DestinationPost          = "post"
	DestinationCommentThread = "comment-thread"
	DestinationMessage       = "message"
	DestinationProfile       = "profile"
	DestinationInbox         = "inbox"
)

// Resolve maps a notification onto the destination its consumer should route
// to, anchored at the related entity.
func Resolve(n models.Notification) Route {
	if n.Type == models.NotificationTypeFriendRequest {
		return Route{Destination: DestinationProfile, AnchorID: n.RelatedEntityID}
	}

	switch n.RelatedEntityType {
	case "post":
		return Route{Destination: DestinationPost, AnchorID: n.RelatedEntityID}
	case "comment":
		return Route{Destination: DestinationCommentThread, AnchorID: n.RelatedEntityID}
	case "message", "conversation":
		return Route{Destination: DestinationMessage, AnchorID: n.RelatedEntityID}
	default:
		return Route{Destination: DestinationInbox}
	}
}
