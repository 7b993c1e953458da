package streaming

import (
	"github.com/cecil-the-coder/fediverse-kit/pkg/entities"
)

// EventType names the kinds of events a session can emit. The values match
// the event names used on the wire.
type EventType string

const (
	// EventUpdate carries a new or edited status on the subscribed feed.
	EventUpdate EventType = "update"

	// EventNotification carries a notification for the authenticated user.
	EventNotification EventType = "notification"

	// EventDelete announces that a status was removed.
	EventDelete EventType = "delete"

	// EventFiltersChanged signals that the user's server-side filters
	// changed and should be refetched. It carries no payload.
	EventFiltersChanged EventType = "filters_changed"

	// EventConversation carries a direct-message conversation update.
	EventConversation EventType = "conversation"
)

// Event is one decoded streaming event. Exactly one payload field is set,
// selected by Type: Status for EventUpdate, Notification for
// EventNotification, Conversation for EventConversation, and DeletedID for
// EventDelete. EventFiltersChanged carries nothing.
type Event struct {
	Type EventType

	Status       *entities.Status
	Notification *entities.Notification
	Conversation *entities.Conversation
	DeletedID    int64
}
