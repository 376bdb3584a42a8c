package zapper

import (
	"context"

	"farcaster-gallery/internal/apperr"
	"farcaster-gallery/internal/identity"
)

// Client is the first profile source in the resolver chain.

func (c *Client) Name() string  { return "zapper" }
func (c *Client) Priority() int { return 1 }

func (c *Client) ProfileByUsername(ctx context.Context, username string) (*identity.Identity, error) {
	if !c.Configured() {
		return nil, apperr.New(apperr.NotFound, "portfolio provider not configured")
	}
	return c.FarcasterProfile(ctx, username, 0)
}

func (c *Client) ProfileByFID(ctx context.Context, fid int64) (*identity.Identity, error) {
	if !c.Configured() {
		return nil, apperr.New(apperr.NotFound, "portfolio provider not configured")
	}
	return c.FarcasterProfile(ctx, "", fid)
}
