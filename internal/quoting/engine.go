// Package quoting implements the Quoting Engine (spec §4.2): fan-out
// parallel quote requests across the Venue Registry's adapters with
// batching and short-lived result caching.
package quoting

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/venue"
)

// Pair is one (venue, tokenIn, tokenOut) request.
type Pair struct {
	Venue    domain.VenueID
	Pool     domain.Pool
	TokenIn  domain.TokenRef
	TokenOut domain.TokenRef
}

// Key identifies one entry of the Quotes result map.
type Key struct {
	Venue    domain.VenueID
	TokenIn  common.Address
	TokenOut common.Address
}

// Engine fans quote requests out to the venue registry's adapters, bounded
// by MaxParallelRequests, with results cached by block bucket.
type Engine struct {
	registry           *venue.Registry
	cache              *lruCache
	maxParallel        int
	ttlBlocks          uint64
	currentBlockFn     func() uint64
}

// Config configures an Engine's cache and concurrency bounds (spec §6:
// cache.ttl_blocks, and the engine-wide max_parallel_requests knob).
type Config struct {
	MaxParallelRequests int
	CacheTTLBlocks      uint64
	CacheCapacity       int
	CurrentBlock        func() uint64
}

func NewEngine(registry *venue.Registry, cfg Config) *Engine {
	if cfg.MaxParallelRequests < 1 {
		cfg.MaxParallelRequests = 8
	}
	if cfg.CacheTTLBlocks < 1 {
		cfg.CacheTTLBlocks = 1
	}
	if cfg.CacheCapacity < 1 {
		cfg.CacheCapacity = 1024
	}
	return &Engine{
		registry:       registry,
		cache:          newLRUCache(cfg.CacheCapacity),
		maxParallel:    cfg.MaxParallelRequests,
		ttlBlocks:      cfg.CacheTTLBlocks,
		currentBlockFn: cfg.CurrentBlock,
	}
}

// Quotes resolves every pair concurrently (bounded by MaxParallelRequests),
// serving from cache where possible. Missing results (adapter error,
// NoPool, Stale) are simply absent from the returned map, never zero-valued
// (spec §4.2).
func (e *Engine) Quotes(ctx context.Context, pairs []Pair, amountIn *big.Int) map[Key]domain.Quote {
	out := make(map[Key]domain.Quote, len(pairs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxParallel)
	for _, pair := range pairs {
		pair := pair
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			quote, ok := e.quoteOne(ctx, pair, amountIn)
			if !ok {
				return
			}
			key := Key{Venue: pair.Venue, TokenIn: pair.TokenIn.Address, TokenOut: pair.TokenOut.Address}
			mu.Lock()
			// A venue may offer several pools for the same token pair (distinct
			// fee tiers); keep whichever quotes the larger output.
			if existing, ok := out[key]; !ok || quote.AmountOut.Cmp(existing.AmountOut) > 0 {
				out[key] = quote
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func (e *Engine) quoteOne(ctx context.Context, pair Pair, amountIn *big.Int) (domain.Quote, bool) {
	adapter, ok := e.registry.Lookup(pair.Venue)
	if !ok {
		return domain.Quote{}, false
	}

	bucket := e.blockBucket()
	key := cacheKey{Venue: pair.Venue, Pool: pair.Pool.Addr, TokenIn: pair.TokenIn.Address, TokenOut: pair.TokenOut.Address, BlockBucket: bucket}
	if cached, hit := e.cache.get(key); hit {
		return cached, true
	}

	quote, err := adapter.Quote(ctx, pair.Pool, pair.TokenIn, pair.TokenOut, amountIn)
	if err != nil {
		// AdapterError (or NoPool/Stale): absorbed here, never bubbles past
		// the engine (spec §7 propagation policy).
		return domain.Quote{}, false
	}

	e.cache.set(key, quote)
	return quote, true
}

func (e *Engine) blockBucket() uint64 {
	if e.currentBlockFn == nil {
		return 0
	}
	block := e.currentBlockFn()
	return block / e.ttlBlocks
}
