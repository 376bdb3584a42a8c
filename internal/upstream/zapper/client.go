// Package zapper is a narrow client for the portfolio GraphQL API. It
// resolves Farcaster profiles to addresses and lists portfolio NFTs.
package zapper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"farcaster-gallery/internal/apperr"
	"farcaster-gallery/internal/httpx"
	"farcaster-gallery/internal/identity"
	"farcaster-gallery/internal/nft"
)

const defaultEndpoint = "https://public.zapper.xyz/graphql"

type Client struct {
	httpClient *http.Client
	breaker    *httpx.CircuitBreaker
	retry      httpx.RetryConfig
	log        *slog.Logger
	apiKey     string
	endpoint   string
}

func New(log *slog.Logger, apiKey string) *Client {
	return &Client{
		httpClient: httpx.NewClient(10 * time.Second),
		breaker:    httpx.NewCircuitBreaker(),
		retry:      httpx.DefaultRetryConfig(),
		log:        log,
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
	}
}

// SetEndpoint overrides the GraphQL endpoint (tests).
func (c *Client) SetEndpoint(u string) {
	c.endpoint = u
}

// Configured reports whether an API key is present; the resolver skips the
// portfolio source entirely when it is not.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

const profileQuery = `query FarcasterProfile($username: String, $fid: Int) {
  farcasterProfile(username: $username, fid: $fid) {
    username
    fid
    metadata { displayName imageUrl }
    custodyAddress
    connectedAddresses
  }
}`

const nftTokensQuery = `query UserNftTokens($owners: [Address!]!, $first: Int, $after: String) {
  nftUsersTokens(owners: $owners, first: $first, after: $after) {
    edges {
      node {
        tokenId
        name
        collection { name address floorPrice { valueUsd valueWithDenomination } }
        mediasV2 { ... on Image { original } }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

type profilePayload struct {
	FarcasterProfile *struct {
		Username string `json:"username"`
		FID      int64  `json:"fid"`
		Metadata struct {
			DisplayName string `json:"displayName"`
			ImageURL    string `json:"imageUrl"`
		} `json:"metadata"`
		CustodyAddress     string   `json:"custodyAddress"`
		ConnectedAddresses []string `json:"connectedAddresses"`
	} `json:"farcasterProfile"`
}

// FarcasterProfile resolves a profile by username or FID (set exactly one).
func (c *Client) FarcasterProfile(ctx context.Context, username string, fid int64) (*identity.Identity, error) {
	vars := map[string]any{}
	if username != "" {
		vars["username"] = username
	}
	if fid > 0 {
		vars["fid"] = fid
	}

	var payload profilePayload
	if err := c.query(ctx, profileQuery, vars, &payload); err != nil {
		return nil, err
	}
	p := payload.FarcasterProfile
	if p == nil || p.FID == 0 {
		return nil, apperr.New(apperr.NotFound, "portfolio provider has no such profile")
	}

	id := &identity.Identity{
		FID:                p.FID,
		Username:           p.Username,
		DisplayName:        p.Metadata.DisplayName,
		AvatarURL:          p.Metadata.ImageURL,
		CustodyAddress:     p.CustodyAddress,
		ConnectedAddresses: p.ConnectedAddresses,
	}
	id.Canonicalize()
	return id, nil
}

type nftTokensPayload struct {
	NFTUsersTokens struct {
		Edges []struct {
			Node struct {
				TokenID    string `json:"tokenId"`
				Name       string `json:"name"`
				Collection struct {
					Name       string `json:"name"`
					Address    string `json:"address"`
					FloorPrice *struct {
						ValueUsd              *float64 `json:"valueUsd"`
						ValueWithDenomination *float64 `json:"valueWithDenomination"`
					} `json:"floorPrice"`
				} `json:"collection"`
				MediasV2 []struct {
					Original string `json:"original"`
				} `json:"mediasV2"`
			} `json:"node"`
		} `json:"edges"`
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
	} `json:"nftUsersTokens"`
}

// UserNFTTokens lists one page of portfolio NFTs for the owner set,
// translated into the raw superset shape for the normalizer.
func (c *Client) UserNFTTokens(ctx context.Context, owners []string, cursor string, pageSize int) ([]nft.Raw, string, error) {
	if pageSize <= 0 {
		pageSize = 24
	}
	vars := map[string]any{
		"owners": owners,
		"first":  pageSize,
	}
	if cursor != "" {
		vars["after"] = cursor
	}

	var payload nftTokensPayload
	if err := c.query(ctx, nftTokensQuery, vars, &payload); err != nil {
		return nil, "", err
	}

	raws := make([]nft.Raw, 0, len(payload.NFTUsersTokens.Edges))
	for _, edge := range payload.NFTUsersTokens.Edges {
		node := edge.Node
		raw := nft.Raw{
			TokenID: node.TokenID,
			Name:    node.Name,
		}
		raw.Contract.Address = node.Collection.Address
		raw.Collection = &nft.RawCollection{Name: node.Collection.Name}
		if fp := node.Collection.FloorPrice; fp != nil {
			raw.Collection.FloorPrice = &nft.RawFloorPrice{
				Value:    fp.ValueWithDenomination,
				ValueUsd: fp.ValueUsd,
			}
		}
		if len(node.MediasV2) > 0 && node.MediasV2[0].Original != "" {
			raw.ImageURL = node.MediasV2[0].Original
		}
		raws = append(raws, raw)
	}

	next := ""
	if payload.NFTUsersTokens.PageInfo.HasNextPage {
		next = payload.NFTUsersTokens.PageInfo.EndCursor
	}
	return raws, next, nil
}

func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any) error {
	if !c.breaker.Allow() {
		return apperr.New(apperr.Upstream, "portfolio circuit open")
	}

	reqBody, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": vars,
	})
	if err != nil {
		return err
	}

	resp, err := httpx.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-zapper-api-key", c.apiKey)
		return req, nil
	})
	if err != nil {
		c.breaker.RecordFailure()
		if ctx.Err() != nil {
			return apperr.Wrap(apperr.Timeout, "portfolio request timed out", err)
		}
		return &apperr.Error{Kind: apperr.Upstream, Detail: "portfolio request failed", UpstreamStatus: httpx.StatusOf(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return &apperr.Error{Kind: apperr.Upstream, Detail: "portfolio error", UpstreamStatus: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return apperr.Wrap(apperr.Upstream, "reading portfolio response", err)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.breaker.RecordFailure()
		return apperr.Wrap(apperr.Upstream, "malformed portfolio response", err)
	}
	if len(envelope.Errors) > 0 {
		c.breaker.RecordSuccess() // transport was fine; the query failed
		return apperr.New(apperr.Upstream, fmt.Sprintf("portfolio query error: %s", envelope.Errors[0].Message))
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		c.breaker.RecordFailure()
		return apperr.Wrap(apperr.Upstream, "malformed portfolio data", err)
	}

	c.breaker.RecordSuccess()
	return nil
}
