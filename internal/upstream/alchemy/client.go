// Package alchemy is a narrow client for the NFT index API, keyed by chain.
package alchemy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"farcaster-gallery/internal/apperr"
	"farcaster-gallery/internal/chain"
	"farcaster-gallery/internal/httpx"
	"farcaster-gallery/internal/nft"
)

const (
	// DefaultPageSize matches the provider default for owner token listings.
	DefaultPageSize = 100

	// pageDelay spaces auto-scheduled pages beyond the first to stay under
	// the provider's throughput limits.
	pageDelay = 1500 * time.Millisecond
)

type Client struct {
	httpClient *http.Client
	breaker    *httpx.CircuitBreaker
	retry      httpx.RetryConfig
	log        *slog.Logger
	apiKey     string

	// baseURL overrides per-chain host selection when set (tests).
	baseURL string

	// one limiter per (owner, chain) pagination stream
	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

func New(log *slog.Logger, apiKey string) *Client {
	return &Client{
		httpClient: httpx.NewClient(10 * time.Second),
		breaker:    httpx.NewCircuitBreaker(),
		retry:      httpx.DefaultRetryConfig(),
		log:        log,
		apiKey:     apiKey,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// SetBaseURL overrides the per-chain host (tests).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

func (c *Client) endpoint(ch chain.Chain, method string) string {
	if c.baseURL != "" {
		return c.baseURL + "/nft/v3/" + c.apiKey + "/" + method
	}
	return "https://" + ch.AlchemyHost() + "/nft/v3/" + c.apiKey + "/" + method
}

// pageLimiter returns the limiter serializing page issuance for one
// pagination stream. The first page passes immediately (burst 1); later
// pages wait out the spacing delay.
func (c *Client) pageLimiter(key string) *rate.Limiter {
	c.limitersMu.Lock()
	defer c.limitersMu.Unlock()
	lim, ok := c.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(pageDelay), 1)
		c.limiters[key] = lim
	}
	return lim
}

// NFTsForOwner returns one page of tokens owned by the address on the
// given chain, already decoded into the raw superset shape.
func (c *Client) NFTsForOwner(ctx context.Context, ch chain.Chain, owner, pageKey string, pageSize int, excludeSpam, excludeAirdrops bool) ([]nft.Raw, string, error) {
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}

	if err := c.pageLimiter("owner:" + owner + ":" + string(ch)).Wait(ctx); err != nil {
		return nil, "", apperr.Wrap(apperr.Timeout, "page scheduling canceled", err)
	}

	q := url.Values{}
	q.Set("owner", owner)
	q.Set("withMetadata", "true")
	q.Set("pageSize", strconv.Itoa(pageSize))
	if pageKey != "" {
		q.Set("pageKey", pageKey)
	}
	if excludeSpam {
		q.Add("excludeFilters[]", "SPAM")
	}
	if excludeAirdrops {
		q.Add("excludeFilters[]", "AIRDROPS")
	}

	var payload struct {
		OwnedNFTs []nft.Raw `json:"ownedNfts"`
		PageKey   string    `json:"pageKey"`
	}
	if err := c.get(ctx, c.endpoint(ch, "getNFTsForOwner"), q, &payload); err != nil {
		return nil, "", err
	}
	return payload.OwnedNFTs, payload.PageKey, nil
}

// ownerEntry tolerates both owner list shapes the provider returns: a bare
// address string or an object with an ownerAddress field.
type ownerEntry struct {
	Address string
}

func (o *ownerEntry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &o.Address)
	}
	var obj struct {
		OwnerAddress string `json:"ownerAddress"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	o.Address = obj.OwnerAddress
	return nil
}

// OwnersForContract returns one page of holder addresses, lowercased.
func (c *Client) OwnersForContract(ctx context.Context, ch chain.Chain, contract, pageKey string) ([]string, string, error) {
	q := url.Values{}
	q.Set("contractAddress", contract)
	q.Set("withTokenBalances", "false")
	if pageKey != "" {
		q.Set("pageKey", pageKey)
	}

	var payload struct {
		Owners  []ownerEntry `json:"owners"`
		PageKey string       `json:"pageKey"`
	}
	if err := c.get(ctx, c.endpoint(ch, "getOwnersForContract"), q, &payload); err != nil {
		return nil, "", err
	}

	owners := make([]string, 0, len(payload.Owners))
	for _, o := range payload.Owners {
		if o.Address != "" {
			owners = append(owners, strings.ToLower(o.Address))
		}
	}
	return owners, payload.PageKey, nil
}

// NFTMetadata fetches a single token's raw record.
func (c *Client) NFTMetadata(ctx context.Context, ch chain.Chain, contract, tokenID string) (*nft.Raw, error) {
	q := url.Values{}
	q.Set("contractAddress", contract)
	q.Set("tokenId", tokenID)

	var raw nft.Raw
	if err := c.get(ctx, c.endpoint(ch, "getNFTMetadata"), q, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func (c *Client) get(ctx context.Context, target string, query url.Values, out any) error {
	if !c.breaker.Allow() {
		return apperr.New(apperr.Upstream, "nft index circuit open")
	}

	full := target + "?" + query.Encode()
	resp, err := httpx.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, full, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		c.breaker.RecordFailure()
		if ctx.Err() != nil {
			return apperr.Wrap(apperr.Timeout, "nft index request timed out", err)
		}
		return &apperr.Error{Kind: apperr.Upstream, Detail: "nft index request failed", UpstreamStatus: httpx.StatusOf(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.breaker.RecordSuccess()
		return &apperr.Error{Kind: apperr.NotFound, Detail: "nft index resource not found", UpstreamStatus: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return &apperr.Error{Kind: apperr.Upstream, Detail: "nft index error", UpstreamStatus: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return apperr.Wrap(apperr.Upstream, "reading nft index response", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.breaker.RecordFailure()
		return apperr.Wrap(apperr.Upstream, "malformed nft index response", err)
	}

	c.breaker.RecordSuccess()
	return nil
}
