package neynar

import (
	"context"

	"farcaster-gallery/internal/identity"
)

// Client is the fallback profile source behind the portfolio provider.

func (c *Client) Name() string  { return "neynar" }
func (c *Client) Priority() int { return 2 }

func (c *Client) ProfileByUsername(ctx context.Context, username string) (*identity.Identity, error) {
	return c.UserByUsername(ctx, username)
}

func (c *Client) ProfileByFID(ctx context.Context, fid int64) (*identity.Identity, error) {
	return c.UserByFID(ctx, fid)
}
