package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"farcaster-gallery/internal/apperr"
)

// ProfileSource is a single upstream able to resolve Farcaster profiles.
// Sources are tried in priority order (lower number first).
type ProfileSource interface {
	Name() string
	Priority() int
	ProfileByUsername(ctx context.Context, username string) (*Identity, error)
	ProfileByFID(ctx context.Context, fid int64) (*Identity, error)
}

// Resolver walks registered sources until one returns a profile. Results
// are cached by normalized handle and by FID for a short TTL.
type Resolver struct {
	sources []ProfileSource
	cache   *gocache.Cache // nil disables caching (tests)
	log     *slog.Logger

	// total wall-clock cap for one resolve call, covering all sources
	resolveTimeout time.Duration
}

const cacheTTL = 5 * time.Minute

func NewResolver(log *slog.Logger, cached bool) *Resolver {
	r := &Resolver{
		log:            log,
		resolveTimeout: 10 * time.Second,
	}
	if cached {
		r.cache = gocache.New(cacheTTL, 10*time.Minute)
	}
	return r
}

func (r *Resolver) RegisterSource(source ProfileSource) {
	r.sources = append(r.sources, source)
	sort.SliceStable(r.sources, func(i, j int) bool {
		return r.sources[i].Priority() < r.sources[j].Priority()
	})
}

// CacheLen reports cached identity count, for the health endpoint.
func (r *Resolver) CacheLen() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.ItemCount()
}

// ParseHandle normalizes user input into either a numeric FID or a
// username plus an optional fallback username (".eth" stripped).
func ParseHandle(raw string) (fid int64, candidates []string, err error) {
	h := strings.TrimSpace(raw)
	if h == "" {
		return 0, nil, apperr.New(apperr.InvalidArgument, "empty handle")
	}

	if n, convErr := strconv.ParseInt(h, 10, 64); convErr == nil {
		return n, nil, nil
	}

	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "warpcast.com/")
	h = strings.TrimPrefix(h, "@")
	h = strings.ToLower(h)
	if h == "" {
		return 0, nil, apperr.New(apperr.InvalidArgument, "empty handle")
	}

	candidates = []string{h}
	if trimmed := strings.TrimSuffix(h, ".eth"); trimmed != h && trimmed != "" {
		candidates = append(candidates, trimmed)
	}
	return 0, candidates, nil
}

// Resolve maps a username or numeric FID to an Identity.
func (r *Resolver) Resolve(ctx context.Context, handle string) (*Identity, error) {
	fid, candidates, err := ParseHandle(handle)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
	defer cancel()

	if fid > 0 {
		return r.resolveFID(ctx, fid)
	}

	var lastErr error
	for _, name := range candidates {
		id, err := r.resolveUsername(ctx, name)
		if err == nil {
			if name != candidates[0] {
				r.storeAlias(candidates[0], id)
			}
			return id, nil
		}
		if apperr.KindOf(err) != apperr.NotFound {
			lastErr = err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apperr.New(apperr.NotFound, fmt.Sprintf("no profile for %q", handle))
}

func (r *Resolver) resolveUsername(ctx context.Context, name string) (*Identity, error) {
	cacheKey := "u:" + name
	if id, ok := r.cached(cacheKey); ok {
		return id, nil
	}

	id, err := r.walkSources(ctx, name, func(ctx context.Context, s ProfileSource) (*Identity, error) {
		return s.ProfileByUsername(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	r.store(id)
	return id, nil
}

func (r *Resolver) resolveFID(ctx context.Context, fid int64) (*Identity, error) {
	cacheKey := "f:" + strconv.FormatInt(fid, 10)
	if id, ok := r.cached(cacheKey); ok {
		return id, nil
	}

	id, err := r.walkSources(ctx, strconv.FormatInt(fid, 10), func(ctx context.Context, s ProfileSource) (*Identity, error) {
		return s.ProfileByFID(ctx, fid)
	})
	if err != nil {
		return nil, err
	}
	r.store(id)
	return id, nil
}

// walkSources tries each source in priority order. NotFound falls through
// to the next source; transport failures also fall through but are kept so
// the caller sees an Upstream error when nothing resolved.
func (r *Resolver) walkSources(ctx context.Context, handle string, fetch func(context.Context, ProfileSource) (*Identity, error)) (*Identity, error) {
	if len(r.sources) == 0 {
		return nil, apperr.New(apperr.Config, "no profile sources configured")
	}

	var lastErr error
	for _, source := range r.sources {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.Timeout, "resolve deadline exceeded", ctx.Err())
		}

		r.log.Debug("trying_profile_source", "source", source.Name(), "handle", handle)
		id, err := fetch(ctx, source)
		if err == nil && id != nil {
			id.Canonicalize()
			r.log.Info("profile_resolved", "source", source.Name(), "handle", handle, "fid", id.FID)
			return id, nil
		}
		if err != nil && apperr.KindOf(err) != apperr.NotFound {
			r.log.Warn("profile_source_failed", "source", source.Name(), "handle", handle, "error", err)
			lastErr = err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apperr.New(apperr.NotFound, fmt.Sprintf("no profile for %q", handle))
}

func (r *Resolver) cached(key string) (*Identity, bool) {
	if r.cache == nil {
		return nil, false
	}
	if v, ok := r.cache.Get(key); ok {
		if id, ok := v.(*Identity); ok {
			return id, true
		}
	}
	return nil, false
}

// storeAlias caches a resolved identity under the handle the caller asked
// for, so a lookup that resolved through the ".eth"-stripped fallback does
// not re-walk the sources on repeat queries.
func (r *Resolver) storeAlias(name string, id *Identity) {
	if r.cache == nil || id == nil || name == "" {
		return
	}
	r.cache.SetDefault("u:"+name, id)
}

func (r *Resolver) store(id *Identity) {
	if r.cache == nil || id == nil {
		return
	}
	if id.Username != "" {
		r.cache.SetDefault("u:"+strings.ToLower(id.Username), id)
	}
	if id.FID > 0 {
		r.cache.SetDefault("f:"+strconv.FormatInt(id.FID, 10), id)
	}
}
