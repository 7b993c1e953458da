package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/cecil-the-coder/fediverse-kit/pkg/entities"
)

// PostStatusParams are the fields of a new status. Only Text is required.
type PostStatusParams struct {
	Text        string
	InReplyToID string
	Visibility  string // public, unlisted, private, direct
	SpoilerText string
	Sensitive   bool

	// IdempotencyKey deduplicates retried posts server-side. A random key
	// is generated when empty.
	IdempotencyKey string
}

// PostStatus publishes a new status. The request carries an
// Idempotency-Key header so a retry after a network failure cannot create
// a duplicate post.
func (c *Client) PostStatus(ctx context.Context, params PostStatusParams) (*entities.Status, error) {
	if params.Text == "" {
		return nil, fmt.Errorf("client: status text is required")
	}
	if params.IdempotencyKey == "" {
		params.IdempotencyKey = uuid.New().String()
	}

	form := url.Values{}
	form.Set("status", params.Text)
	if params.InReplyToID != "" {
		form.Set("in_reply_to_id", params.InReplyToID)
	}
	if params.Visibility != "" {
		form.Set("visibility", params.Visibility)
	}
	if params.SpoilerText != "" {
		form.Set("spoiler_text", params.SpoilerText)
	}
	if params.Sensitive {
		form.Set("sensitive", "true")
	}

	headers := http.Header{}
	headers.Set("Idempotency-Key", params.IdempotencyKey)

	var status entities.Status
	if err := c.postForm(ctx, "/api/v1/statuses", form, headers, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetStatus fetches a status by ID.
func (c *Client) GetStatus(ctx context.Context, id string) (*entities.Status, error) {
	var status entities.Status
	if err := c.get(ctx, "/api/v1/statuses/"+id, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// DeleteStatus removes one of the authenticated user's statuses.
func (c *Client) DeleteStatus(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/statuses/"+id, nil)
}

// Favourite marks a status as favourited and returns its new state.
func (c *Client) Favourite(ctx context.Context, id string) (*entities.Status, error) {
	var status entities.Status
	if err := c.postForm(ctx, "/api/v1/statuses/"+id+"/favourite", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Reblog boosts a status and returns the wrapping reblog status.
func (c *Client) Reblog(ctx context.Context, id string) (*entities.Status, error) {
	var status entities.Status
	if err := c.postForm(ctx, "/api/v1/statuses/"+id+"/reblog", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
