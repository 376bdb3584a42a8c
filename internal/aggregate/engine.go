// Package aggregate fans out paginated NFT fetches across every resolved
// (address, chain) pair, merging results through the normalizer and deduper
// with progressive delivery.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"farcaster-gallery/internal/chain"
	"farcaster-gallery/internal/identity"
	"farcaster-gallery/internal/nft"
)

const (
	defaultParallelism = 4
	pageCacheTTL       = 15 * time.Minute
	pageCacheMax       = 500
)

// PageFetcher is the slice of the NFT index client the engine needs.
type PageFetcher interface {
	NFTsForOwner(ctx context.Context, ch chain.Chain, owner, pageKey string, pageSize int, excludeSpam, excludeAirdrops bool) ([]nft.Raw, string, error)
}

type Options struct {
	Chains          []chain.Chain
	ExcludeSpam     bool
	ExcludeAirdrops bool
	AggressiveSpam  bool
	PageSize        int

	// zero means uncapped
	MaxNFTsPerWallet int
	MaxTotalNFTs     int

	// Parallelism bounds the worker pool; defaults to 4.
	Parallelism int
}

type Warning struct {
	Address string      `json:"address"`
	Chain   chain.Chain `json:"chain,omitempty"`
	Detail  string      `json:"detail"`
}

type Result struct {
	NFTs      []nft.NFT      `json:"nfts"`
	PerWallet map[string]int `json:"perWallet"`
	Warnings  []Warning      `json:"warnings"`
}

// Progress is a monotonic-growth snapshot handed to the caller after each
// merged page. The final invocation has InProgress false, exactly once.
type Progress struct {
	NFTs       []nft.NFT
	InProgress bool
}

type ProgressFunc func(Progress)

type Engine struct {
	index PageFetcher
	log   *slog.Logger

	pageCache *gocache.Cache // nil disables caching (tests)
}

func NewEngine(log *slog.Logger, index PageFetcher, cached bool) *Engine {
	e := &Engine{index: index, log: log}
	if cached {
		e.pageCache = gocache.New(pageCacheTTL, 30*time.Minute)
	}
	return e
}

// CacheLen reports cached page count, for the health endpoint.
func (e *Engine) CacheLen() int {
	if e.pageCache == nil {
		return 0
	}
	return e.pageCache.ItemCount()
}

type pair struct {
	address string
	ch      chain.Chain
}

// run holds the mutable state of one aggregation; all mutation happens
// under mu so the merge stays consistent across workers.
type run struct {
	mu        sync.Mutex
	deduper   *nft.Deduper
	perWallet map[string]int
	warnings  []Warning
	total     int
	capped    bool
}

// Aggregate walks every (address, chain) pair through the paginated index.
// A failed pair becomes a warning, never an error: partial failure is a
// normal completion.
func (e *Engine) Aggregate(ctx context.Context, addresses []string, opts Options, onProgress ProgressFunc) (*Result, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if len(opts.Chains) == 0 {
		opts.Chains = []chain.Chain{chain.Eth}
	}

	st := &run{
		deduper:   nft.NewDeduper(),
		perWallet: make(map[string]int),
	}

	var valid []string
	for _, a := range addresses {
		norm, ok := identity.NormalizeAddress(a)
		if !ok {
			st.warnings = append(st.warnings, Warning{Address: a, Detail: "invalid address"})
			continue
		}
		valid = append(valid, norm)
		st.perWallet[norm] = 0
	}

	pairs := make([]pair, 0, len(valid)*len(opts.Chains))
	for _, addr := range valid {
		for _, ch := range opts.Chains {
			pairs = append(pairs, pair{address: addr, ch: ch})
		}
	}

	jobs := make(chan pair)
	var wg sync.WaitGroup
	for i := 0; i < opts.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				e.fetchPair(ctx, p, opts, st, onProgress)
			}
		}()
	}

	for _, p := range pairs {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	result := &Result{
		NFTs:      st.deduper.Snapshot(),
		PerWallet: st.perWallet,
		Warnings:  st.warnings,
	}
	if result.Warnings == nil {
		result.Warnings = []Warning{}
	}
	if onProgress != nil {
		onProgress(Progress{NFTs: result.NFTs, InProgress: false})
	}
	return result, nil
}

// fetchPair runs the sequential page loop for one (address, chain) pair;
// page N+1 is never issued before page N returns.
func (e *Engine) fetchPair(ctx context.Context, p pair, opts Options, st *run, onProgress ProgressFunc) {
	pageKey := ""

	for {
		if ctx.Err() != nil {
			st.mu.Lock()
			st.warnings = append(st.warnings, Warning{Address: p.address, Chain: p.ch, Detail: "canceled"})
			st.mu.Unlock()
			return
		}
		st.mu.Lock()
		capped := st.capped
		walletCapped := opts.MaxNFTsPerWallet > 0 && st.perWallet[p.address] >= opts.MaxNFTsPerWallet
		st.mu.Unlock()
		if capped || walletCapped {
			return
		}

		raws, nextKey, err := e.fetchPage(ctx, p, pageKey, opts)
		if err != nil {
			e.log.Warn("aggregation_page_failed", "address", p.address, "chain", p.ch, "error", err)
			st.mu.Lock()
			st.warnings = append(st.warnings, Warning{Address: p.address, Chain: p.ch, Detail: err.Error()})
			st.mu.Unlock()
			return
		}

		st.mu.Lock()
		for _, raw := range raws {
			n := nft.Normalize(raw, p.ch, p.address)
			if opts.AggressiveSpam {
				nft.MarkAggressiveSpam(&n)
			}
			if opts.ExcludeSpam && n.IsSpam() {
				continue
			}
			// The per-wallet cap counts distinct kept records across every
			// chain of this wallet, so duplicates and excluded spam are free.
			if opts.MaxNFTsPerWallet > 0 && st.perWallet[p.address] >= opts.MaxNFTsPerWallet {
				break
			}
			if st.deduper.Add(n) {
				st.perWallet[p.address]++
				st.total++
			}
			if opts.MaxTotalNFTs > 0 && st.total >= opts.MaxTotalNFTs {
				st.capped = true
				break
			}
		}
		walletCapped = opts.MaxNFTsPerWallet > 0 && st.perWallet[p.address] >= opts.MaxNFTsPerWallet
		snapshot := st.deduper.Snapshot()
		capped = st.capped
		st.mu.Unlock()

		if onProgress != nil {
			onProgress(Progress{NFTs: snapshot, InProgress: true})
		}

		if capped || walletCapped || nextKey == "" {
			return
		}
		pageKey = nextKey
	}
}

func (e *Engine) fetchPage(ctx context.Context, p pair, pageKey string, opts Options) ([]nft.Raw, string, error) {
	key := pageCacheKey(p, pageKey, opts.PageSize)
	if e.pageCache != nil {
		if v, ok := e.pageCache.Get(key); ok {
			if cached, ok := v.(cachedPage); ok {
				return cached.raws, cached.nextKey, nil
			}
		}
	}

	raws, nextKey, err := e.index.NFTsForOwner(ctx, p.ch, p.address, pageKey, opts.PageSize, opts.ExcludeSpam, opts.ExcludeAirdrops)
	if err != nil {
		return nil, "", err
	}

	if e.pageCache != nil && e.pageCache.ItemCount() < pageCacheMax {
		e.pageCache.SetDefault(key, cachedPage{raws: raws, nextKey: nextKey})
	}
	return raws, nextKey, nil
}

type cachedPage struct {
	raws    []nft.Raw
	nextKey string
}

func pageCacheKey(p pair, pageKey string, pageSize int) string {
	return fmt.Sprintf("%s|%s|%s|%d", strings.ToLower(p.address), p.ch, pageKey, pageSize)
}
