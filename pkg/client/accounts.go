package client

import (
	"context"

	"github.com/cecil-the-coder/fediverse-kit/pkg/entities"
)

// VerifyCredentials returns the account the access token belongs to. It is
// the cheapest way to confirm a token works.
func (c *Client) VerifyCredentials(ctx context.Context) (*entities.Account, error) {
	var account entities.Account
	if err := c.get(ctx, "/api/v1/accounts/verify_credentials", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccount fetches an account by ID.
func (c *Client) GetAccount(ctx context.Context, id string) (*entities.Account, error) {
	var account entities.Account
	if err := c.get(ctx, "/api/v1/accounts/"+id, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}
