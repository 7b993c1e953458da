package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/cecil-the-coder/fediverse-kit/pkg/entities"
)

// TimelineOptions page through a timeline. Zero values are omitted from
// the request.
type TimelineOptions struct {
	Limit   int
	MaxID   string // return statuses older than this ID
	SinceID string // return statuses newer than this ID
}

func (o TimelineOptions) query() url.Values {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.MaxID != "" {
		q.Set("max_id", o.MaxID)
	}
	if o.SinceID != "" {
		q.Set("since_id", o.SinceID)
	}
	return q
}

// HomeTimeline returns statuses from accounts the user follows.
func (c *Client) HomeTimeline(ctx context.Context, opts TimelineOptions) ([]entities.Status, error) {
	var statuses []entities.Status
	if err := c.get(ctx, "/api/v1/timelines/home", opts.query(), &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// PublicTimeline returns the public timeline; local restricts it to
// statuses originating on this instance.
func (c *Client) PublicTimeline(ctx context.Context, local bool, opts TimelineOptions) ([]entities.Status, error) {
	q := opts.query()
	if local {
		q.Set("local", "true")
	}
	var statuses []entities.Status
	if err := c.get(ctx, "/api/v1/timelines/public", q, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// HashtagTimeline returns recent statuses carrying a hashtag.
func (c *Client) HashtagTimeline(ctx context.Context, tag string, opts TimelineOptions) ([]entities.Status, error) {
	var statuses []entities.Status
	if err := c.get(ctx, "/api/v1/timelines/tag/"+url.PathEscape(tag), opts.query(), &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}
