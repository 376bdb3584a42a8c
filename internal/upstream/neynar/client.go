// Package neynar is a narrow client for the Farcaster social-graph API.
package neynar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"farcaster-gallery/internal/apperr"
	"farcaster-gallery/internal/httpx"
	"farcaster-gallery/internal/identity"
)

const (
	defaultBaseURL = "https://api.neynar.com"
	// PageSize is fixed by the provider's following endpoint.
	PageSize = 100
)

type Client struct {
	httpClient *http.Client
	breaker    *httpx.CircuitBreaker
	retry      httpx.RetryConfig
	log        *slog.Logger
	apiKey     string
	baseURL    string
}

func New(log *slog.Logger, apiKey string) *Client {
	return &Client{
		httpClient: httpx.NewClient(10 * time.Second),
		breaker:    httpx.NewCircuitBreaker(),
		retry:      httpx.DefaultRetryConfig(),
		log:        log,
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
	}
}

// SetBaseURL overrides the API host (tests).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// User is the provider's user shape. Address fields are translated to the
// canonical Identity by ToIdentity; nothing outside this package reads them.
type User struct {
	FID               int64  `json:"fid"`
	Username          string `json:"username"`
	DisplayName       string `json:"display_name"`
	PfpURL            string `json:"pfp_url"`
	CustodyAddress    string `json:"custody_address"`
	VerifiedAddresses struct {
		EthAddresses []string `json:"eth_addresses"`
	} `json:"verified_addresses"`
}

func (u User) ToIdentity() *identity.Identity {
	id := &identity.Identity{
		FID:                u.FID,
		Username:           u.Username,
		DisplayName:        u.DisplayName,
		AvatarURL:          u.PfpURL,
		CustodyAddress:     u.CustodyAddress,
		ConnectedAddresses: u.VerifiedAddresses.EthAddresses,
	}
	id.Canonicalize()
	return id
}

// Addresses returns the union of the user's custody and verified
// addresses, lowercased and validated.
func (u User) Addresses() []string {
	all := append([]string{u.CustodyAddress}, u.VerifiedAddresses.EthAddresses...)
	return identity.DedupeAddresses(all)
}

// Following returns one page of users the given FID follows, plus the
// opaque cursor for the next page ("" when exhausted).
func (c *Client) Following(ctx context.Context, fid int64, cursor string) ([]User, string, error) {
	q := url.Values{}
	q.Set("fid", strconv.FormatInt(fid, 10))
	q.Set("limit", strconv.Itoa(PageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var payload struct {
		Users []struct {
			User User `json:"user"`
		} `json:"users"`
		Next struct {
			Cursor string `json:"cursor"`
		} `json:"next"`
	}
	if err := c.get(ctx, "/v2/farcaster/following", q, &payload); err != nil {
		return nil, "", err
	}

	users := make([]User, 0, len(payload.Users))
	for _, wrapped := range payload.Users {
		users = append(users, wrapped.User)
	}
	return users, payload.Next.Cursor, nil
}

func (c *Client) UserByUsername(ctx context.Context, username string) (*identity.Identity, error) {
	q := url.Values{}
	q.Set("username", username)

	var payload struct {
		User User `json:"user"`
	}
	if err := c.get(ctx, "/v2/farcaster/user/by_username", q, &payload); err != nil {
		return nil, err
	}
	if payload.User.FID == 0 {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("no farcaster user %q", username))
	}
	return payload.User.ToIdentity(), nil
}

func (c *Client) UserByFID(ctx context.Context, fid int64) (*identity.Identity, error) {
	q := url.Values{}
	q.Set("fids", strconv.FormatInt(fid, 10))

	var payload struct {
		Users []User `json:"users"`
	}
	if err := c.get(ctx, "/v2/farcaster/user/bulk", q, &payload); err != nil {
		return nil, err
	}
	if len(payload.Users) == 0 {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("no farcaster user with fid %d", fid))
	}
	return payload.Users[0].ToIdentity(), nil
}

// SearchUsers returns profiles whose username matches the prefix.
func (c *Client) SearchUsers(ctx context.Context, prefix string) ([]*identity.Identity, error) {
	q := url.Values{}
	q.Set("q", prefix)
	q.Set("limit", "10")

	var payload struct {
		Result struct {
			Users []User `json:"users"`
		} `json:"result"`
	}
	if err := c.get(ctx, "/v2/farcaster/user/search", q, &payload); err != nil {
		return nil, err
	}

	out := make([]*identity.Identity, 0, len(payload.Result.Users))
	for _, u := range payload.Result.Users {
		out = append(out, u.ToIdentity())
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if !c.breaker.Allow() {
		return apperr.New(apperr.Upstream, "social graph circuit open")
	}

	target := c.baseURL + path + "?" + query.Encode()
	resp, err := httpx.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		c.breaker.RecordFailure()
		if ctx.Err() != nil {
			return apperr.Wrap(apperr.Timeout, "social graph request timed out", err)
		}
		return &apperr.Error{Kind: apperr.Upstream, Detail: "social graph request failed", UpstreamStatus: httpx.StatusOf(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.breaker.RecordSuccess()
		return &apperr.Error{Kind: apperr.NotFound, Detail: "social graph user not found", UpstreamStatus: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return &apperr.Error{Kind: apperr.Upstream, Detail: "social graph error", UpstreamStatus: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return apperr.Wrap(apperr.Upstream, "reading social graph response", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.breaker.RecordFailure()
		return apperr.Wrap(apperr.Upstream, "malformed social graph response", err)
	}

	c.breaker.RecordSuccess()
	return nil
}
