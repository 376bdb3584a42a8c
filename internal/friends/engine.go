// Package friends cross-references a user's follow graph with a
// collection's on-chain holders.
package friends

import (
	"context"
	"log/slog"

	"farcaster-gallery/internal/apperr"
	"farcaster-gallery/internal/chain"
	"farcaster-gallery/internal/identity"
	"farcaster-gallery/internal/upstream/neynar"
)

// DefaultLimit caps the friends page when the caller does not ask for one.
const DefaultLimit = 50

// followPageCap bounds the follow-list walk so a pathological graph cannot
// hold a request open forever.
const followPageCap = 100

// SocialGraph is the slice of the social client this engine needs.
type SocialGraph interface {
	Following(ctx context.Context, fid int64, cursor string) ([]neynar.User, string, error)
}

// HolderIndex is the slice of the NFT index client this engine needs.
type HolderIndex interface {
	OwnersForContract(ctx context.Context, ch chain.Chain, contract, pageKey string) ([]string, string, error)
}

type Friend struct {
	FID         int64  `json:"fid"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Address     string `json:"address"`
}

type Result struct {
	Friends      []Friend `json:"friends"`
	TotalFriends int      `json:"totalFriends"`
	HasMore      bool     `json:"hasMore"`
}

type Engine struct {
	social SocialGraph
	index  HolderIndex
	log    *slog.Logger
}

func NewEngine(log *slog.Logger, social SocialGraph, index HolderIndex) *Engine {
	return &Engine{social: social, index: index, log: log}
}

// CollectionFriends walks the full follow list and the full owners list,
// intersects on normalized addresses, and joins matches back to profiles.
// Any upstream failure is fatal: the caller gets all-or-nothing.
func (e *Engine) CollectionFriends(ctx context.Context, fid int64, contract string, ch chain.Chain, limit int) (*Result, error) {
	contractNorm, ok := identity.NormalizeAddress(contract)
	if !ok {
		return nil, apperr.New(apperr.InvalidArgument, "contract is not a valid EVM address")
	}
	if limit < 0 {
		limit = DefaultLimit
	}

	followers, err := e.followList(ctx, fid)
	if err != nil {
		return nil, err
	}

	owners, err := e.ownerSet(ctx, ch, contractNorm)
	if err != nil {
		return nil, err
	}

	// join each intersecting address back to the first follower holding it,
	// at most one friend entry per follower
	matchedFIDs := make(map[int64]struct{})
	var all []Friend
	for _, f := range followers {
		for _, addr := range f.addresses {
			if _, holds := owners[addr]; !holds {
				continue
			}
			if _, dup := matchedFIDs[f.user.FID]; dup {
				break
			}
			matchedFIDs[f.user.FID] = struct{}{}
			all = append(all, Friend{
				FID:         f.user.FID,
				Username:    f.user.Username,
				DisplayName: f.user.DisplayName,
				AvatarURL:   f.user.PfpURL,
				Address:     addr,
			})
			break
		}
	}

	total := len(all)
	page := all
	if len(page) > limit {
		page = page[:limit]
	}
	if page == nil {
		page = []Friend{}
	}

	e.log.Info("collection_friends_computed",
		"fid", fid,
		"contract", contractNorm,
		"chain", ch,
		"followers", len(followers),
		"owners", len(owners),
		"matches", total,
	)

	return &Result{
		Friends:      page,
		TotalFriends: total,
		HasMore:      total > limit,
	}, nil
}

type follower struct {
	user      neynar.User
	addresses []string
}

func (e *Engine) followList(ctx context.Context, fid int64) ([]follower, error) {
	var out []follower
	cursor := ""
	for page := 0; page < followPageCap; page++ {
		users, next, err := e.social.Following(ctx, fid, cursor)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			out = append(out, follower{user: u, addresses: u.Addresses()})
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
	return out, nil
}

func (e *Engine) ownerSet(ctx context.Context, ch chain.Chain, contract string) (map[string]struct{}, error) {
	owners := make(map[string]struct{})
	pageKey := ""
	for {
		page, next, err := e.index.OwnersForContract(ctx, ch, contract, pageKey)
		if err != nil {
			return nil, err
		}
		for _, o := range page {
			if norm, ok := identity.NormalizeAddress(o); ok {
				owners[norm] = struct{}{}
			}
		}
		if next == "" {
			return owners, nil
		}
		pageKey = next
	}
}
