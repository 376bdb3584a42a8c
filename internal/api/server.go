package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"farcaster-gallery/internal/aggregate"
	"farcaster-gallery/internal/config"
	"farcaster-gallery/internal/friends"
	"farcaster-gallery/internal/identity"
	"farcaster-gallery/internal/media"
	"farcaster-gallery/internal/upstream/alchemy"
	"farcaster-gallery/internal/upstream/neynar"
	"farcaster-gallery/internal/upstream/zapper"
)

type Server struct {
	log      *slog.Logger
	cfg      config.Config
	router   *gin.Engine
	limiters *ipLimiters

	resolver *identity.Resolver
	social   *neynar.Client
	index    *alchemy.Client
	agg      *aggregate.Engine
	friends  *friends.Engine
	media    *media.Fetcher

	rpcClient *http.Client
	rpcTarget string
}

func NewServer(log *slog.Logger, cfg config.Config) *Server {
	social := neynar.New(log, cfg.NeynarAPIKey)
	index := alchemy.New(log, cfg.AlchemyAPIKey)
	portfolio := zapper.New(log, cfg.ZapperAPIKey)

	resolver := identity.NewResolver(log, true)
	resolver.RegisterSource(portfolio)
	resolver.RegisterSource(social)

	norm := &media.Normalizer{
		Gateway:    cfg.IPFSGateway,
		AlchemyKey: cfg.AlchemyAPIKey,
	}

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		log:      log,
		cfg:      cfg,
		router:   gin.New(),
		limiters: newIPLimiters(),
		resolver: resolver,
		social:   social,
		index:    index,
		agg:      aggregate.NewEngine(log, index, true),
		friends:  friends.NewEngine(log, social, index),
		media:    media.NewFetcher(log, norm),
		rpcClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.inputValidationMiddleware())
	r.Use(s.rateLimitMiddleware())

	api := r.Group("/api")
	{
		api.GET("/farcaster-user", s.getFarcasterUser)
		api.GET("/collection-friends", s.getCollectionFriends)
		api.GET("/user-nfts", s.getUserNFTs)
		api.GET("/search-users", s.searchUsers)
		api.GET("/media", s.getMedia)
		api.GET("/health", s.health)
		api.POST("/rpc/optimism", s.rpcOptimism)
	}

	// legacy routes for clients calling the unprefixed paths
	r.GET("/farcaster-user", s.getFarcasterUser)
	r.GET("/collection-friends", s.getCollectionFriends)
	r.GET("/media", s.getMedia)
	r.POST("/rpc/optimism", s.rpcOptimism)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 30*time.Second)
}
