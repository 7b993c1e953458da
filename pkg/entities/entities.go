// Package entities defines the JSON payload shapes the library decodes from
// Mastodon-compatible servers. Only the fields the kit actually consumes are
// modeled; servers send many more, and unknown fields are ignored by the
// standard JSON decoder.
package entities

import "time"

// Account is the author of a status or the subject of a notification.
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Avatar      string `json:"avatar,omitempty"`
	Bot         bool   `json:"bot,omitempty"`
}

// Tag is a hashtag reference attached to a status.
type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Status is a single post. Reblog is non-nil when the status is a boost of
// another status.
type Status struct {
	ID              string    `json:"id"`
	URI             string    `json:"uri"`
	URL             string    `json:"url,omitempty"`
	Account         Account   `json:"account"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	Visibility      string    `json:"visibility"`
	Sensitive       bool      `json:"sensitive"`
	SpoilerText     string    `json:"spoiler_text"`
	InReplyToID     string    `json:"in_reply_to_id,omitempty"`
	Reblog          *Status   `json:"reblog,omitempty"`
	Tags            []Tag     `json:"tags,omitempty"`
	FavouritesCount int       `json:"favourites_count"`
	ReblogsCount    int       `json:"reblogs_count"`
	RepliesCount    int       `json:"replies_count"`
}

// Notification reports something that happened to the authenticated account:
// a mention, follow, favourite, boost, or poll result. Status is non-nil for
// notification types that reference a status.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   Account   `json:"account"`
	Status    *Status   `json:"status,omitempty"`
}

// Conversation is a direct-message thread, delivered on the direct stream.
type Conversation struct {
	ID         string    `json:"id"`
	Unread     bool      `json:"unread"`
	Accounts   []Account `json:"accounts"`
	LastStatus *Status   `json:"last_status,omitempty"`
}
