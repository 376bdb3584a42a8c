package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"farcaster-gallery/internal/aggregate"
	"farcaster-gallery/internal/apperr"
	"farcaster-gallery/internal/chain"
	"farcaster-gallery/internal/friends"
)

func errJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": code, "message": message})
}

// failFrom translates a classified error into the endpoint response.
func (s *Server) failFrom(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.InvalidArgument:
		errJSON(c, http.StatusBadRequest, "invalid_argument", err.Error())
	case apperr.NotFound:
		errJSON(c, http.StatusNotFound, "not_found", err.Error())
	case apperr.Timeout:
		errJSON(c, http.StatusGatewayTimeout, "timeout", "upstream request timed out")
	case apperr.Config:
		errJSON(c, http.StatusInternalServerError, "config_error", "server configuration error")
	default:
		s.log.Error("upstream_failure", "path", c.Request.URL.Path, "error", err)
		errJSON(c, http.StatusInternalServerError, "upstream_error", "upstream provider failed")
	}
}

func (s *Server) getFarcasterUser(c *gin.Context) {
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		errJSON(c, http.StatusBadRequest, "missing_parameter", "username is required")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	profile, err := s.resolver.Resolve(ctx, username)
	if err != nil {
		s.failFrom(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (s *Server) getCollectionFriends(c *gin.Context) {
	contract := strings.TrimSpace(c.Query("contractAddress"))
	if contract == "" {
		errJSON(c, http.StatusBadRequest, "missing_parameter", "contractAddress is required")
		return
	}
	fidRaw := strings.TrimSpace(c.Query("fid"))
	if fidRaw == "" {
		errJSON(c, http.StatusBadRequest, "missing_parameter", "fid is required")
		return
	}
	fid, err := strconv.ParseInt(fidRaw, 10, 64)
	if err != nil || fid <= 0 {
		errJSON(c, http.StatusBadRequest, "invalid_parameter", "fid must be a positive integer")
		return
	}

	ch, err := chain.Parse(c.Query("network"))
	if err != nil {
		errJSON(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	limit := friends.DefaultLimit
	if limitRaw := c.Query("limit"); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed < 0 {
			errJSON(c, http.StatusBadRequest, "invalid_parameter", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	result, err := s.friends.CollectionFriends(ctx, fid, contract, ch, limit)
	if err != nil {
		if apperr.Is(err, apperr.InvalidArgument) {
			errJSON(c, http.StatusBadRequest, "invalid_parameter", err.Error())
			return
		}
		s.log.Error("collection_friends_failed", "fid", fid, "contract", contract, "error", err)
		errJSON(c, http.StatusInternalServerError, "upstream_error", "failed to compute collection friends")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contractAddress": strings.ToLower(contract),
		"friends":         result.Friends,
		"totalFriends":    result.TotalFriends,
		"hasMore":         result.HasMore,
	})
}

func (s *Server) getUserNFTs(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	addresses, err := s.resolveOwners(c)
	if err != nil {
		s.failFrom(c, err)
		return
	}

	opts := aggregate.Options{
		ExcludeSpam:     c.DefaultQuery("excludeSpam", "true") == "true",
		ExcludeAirdrops: c.Query("excludeAirdrops") == "true",
		AggressiveSpam:  c.Query("aggressiveSpam") == "true",
	}
	for _, raw := range strings.Split(c.DefaultQuery("chains", "eth"), ",") {
		ch, err := chain.Parse(raw)
		if err != nil {
			errJSON(c, http.StatusBadRequest, "invalid_parameter", err.Error())
			return
		}
		opts.Chains = append(opts.Chains, ch)
	}
	if v := c.Query("maxPerWallet"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			opts.MaxNFTsPerWallet = parsed
		}
	}
	if v := c.Query("maxTotal"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			opts.MaxTotalNFTs = parsed
		}
	}

	result, err := s.agg.Aggregate(ctx, addresses, opts, nil)
	if err != nil {
		s.failFrom(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// resolveOwners accepts addresses= directly, or fid=/username= resolved
// through the identity resolver.
func (s *Server) resolveOwners(c *gin.Context) ([]string, error) {
	if raw := strings.TrimSpace(c.Query("addresses")); raw != "" {
		return strings.Split(raw, ","), nil
	}

	handle := strings.TrimSpace(c.Query("fid"))
	if handle == "" {
		handle = strings.TrimSpace(c.Query("username"))
	}
	if handle == "" {
		return nil, apperr.New(apperr.InvalidArgument, "one of addresses, fid, or username is required")
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	profile, err := s.resolver.Resolve(ctx, handle)
	if err != nil {
		return nil, err
	}
	addrs := profile.Addresses()
	if len(addrs) == 0 {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("no wallet addresses linked to %q", handle))
	}
	return addrs, nil
}

func (s *Server) searchUsers(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" || len(q) < 2 {
		errJSON(c, http.StatusBadRequest, "invalid_query", "q must be at least 2 characters")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	users, err := s.social.SearchUsers(ctx, q)
	if err != nil {
		s.failFrom(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query": q,
		"users": users,
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"identityCache":   s.resolver.CacheLen(),
		"pageCache":       s.agg.CacheLen(),
		"portfolioSource": s.cfg.ZapperAPIKey != "",
	})
}

