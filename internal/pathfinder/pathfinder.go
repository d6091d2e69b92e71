// Package pathfinder implements the Path Finder (spec §4.3): it enumerates
// candidate arbitrage paths that begin and end with a configured start
// token, resolves every hop's quote with a single batched call to the
// Quoting Engine, and ranks the closed, profitable candidates by net profit.
//
// Grounded on original_source's path_finder.py: token sequences are grown
// breadth-first, DEX (venue) assignments are enumerated per hop, and all
// required prices are fetched once, at the nominal trade size, before any
// candidate is composed - matching that module's find_arbitrage_paths.
package pathfinder

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/quoting"
	"github.com/nullmev/arbengine/internal/venue"
)

// PoolLookup resolves the candidate pools a venue offers for an (unordered)
// token pair - typically one per configured fee tier. An empty result means
// the venue has no pool for that pair.
type PoolLookup func(venueID domain.VenueID, tokenA, tokenB common.Address) []domain.Pool

// Config holds the Path Finder's search bounds (spec §6: max_path_length,
// min_margin) and the gas model it composes profit against (spec §4.3 step 5).
type Config struct {
	StartToken      domain.TokenRef
	SupportedTokens []domain.TokenRef
	MaxPathLength   int // ℓ upper bound, steps per path; ℓ ∈ [2, MaxPathLength]
	MinMargin       *big.Float
	TopK            int
	BaseGas         uint64
	PerHopGas       uint64
}

// Finder produces ranked ArbitragePaths for one quoting cycle.
type Finder struct {
	cfg      Config
	quoter   *quoting.Engine
	registry *venue.Registry
	pools    PoolLookup
}

func NewFinder(cfg Config, quoter *quoting.Engine, registry *venue.Registry, pools PoolLookup) *Finder {
	if cfg.MaxPathLength < 2 {
		cfg.MaxPathLength = 2
	}
	if cfg.TopK < 1 {
		cfg.TopK = 1
	}
	if cfg.MinMargin == nil {
		cfg.MinMargin = big.NewFloat(0.002)
	}
	return &Finder{cfg: cfg, quoter: quoter, registry: registry, pools: pools}
}

// candidate is one (token sequence, venue assignment) combination awaiting
// quote resolution.
type candidate struct {
	tokens []domain.TokenRef // length ℓ+1, tokens[0] == tokens[ℓ] == start
	venues []domain.VenueID  // length ℓ
}

// Find returns up to TopK ArbitragePaths, ranked by net profit descending,
// tie-broken by shorter path then lexicographic venue-id sequence.
func (f *Finder) Find(ctx context.Context, amountIn *big.Int, gasPrice *big.Float) []domain.ArbitragePath {
	enabledVenues := f.registry.EnabledVenues()
	if len(enabledVenues) == 0 {
		return nil
	}
	sort.Slice(enabledVenues, func(i, j int) bool { return enabledVenues[i] < enabledVenues[j] })

	candidates := f.enumerate(enabledVenues)
	if len(candidates) == 0 {
		return nil
	}

	pairs := f.requiredPairs(candidates)
	quotes := f.quoter.Quotes(ctx, pairs, amountIn)

	paths := make([]domain.ArbitragePath, 0, len(candidates))
	for _, c := range candidates {
		path, ok := f.compose(c, quotes, amountIn, gasPrice)
		if !ok {
			continue
		}
		if path.GrossProfit.Sign() <= 0 {
			continue
		}
		if path.ProfitMargin.Cmp(f.cfg.MinMargin) < 0 {
			continue
		}
		paths = append(paths, path)
	}

	sort.Slice(paths, func(i, j int) bool { return less(paths[i], paths[j]) })
	if len(paths) > f.cfg.TopK {
		paths = paths[:f.cfg.TopK]
	}
	return paths
}

// less reports whether a should sort before b: higher net profit first, then
// shorter path, then lexicographic venue-id sequence (spec §4.3 step 7).
func less(a, b domain.ArbitragePath) bool {
	if cmp := a.NetProfit.Cmp(b.NetProfit); cmp != 0 {
		return cmp > 0
	}
	if len(a.Steps) != len(b.Steps) {
		return len(a.Steps) < len(b.Steps)
	}
	return venueKey(a) < venueKey(b)
}

func venueKey(p domain.ArbitragePath) string {
	s := make([]byte, 0, len(p.Steps)*8)
	for _, step := range p.Steps {
		s = append(s, step.Venue...)
		s = append(s, '|')
	}
	return string(s)
}

// enumerate builds every (token sequence, venue assignment) candidate for
// path lengths ℓ ∈ [2, MaxPathLength].
func (f *Finder) enumerate(enabledVenues []domain.VenueID) []candidate {
	var out []candidate
	for length := 2; length <= f.cfg.MaxPathLength; length++ {
		for _, seq := range f.tokenSequences(length) {
			for _, venues := range venueAssignments(enabledVenues, length) {
				out = append(out, candidate{tokens: seq, venues: venues})
			}
		}
	}
	return out
}

// tokenSequences returns every closed token sequence of length+1 tokens
// (start ... start) whose length-1 intermediates are distinct permutations
// of the supported-token set, excluding the start token itself.
func (f *Finder) tokenSequences(length int) [][]domain.TokenRef {
	pool := make([]domain.TokenRef, 0, len(f.cfg.SupportedTokens))
	for _, t := range f.cfg.SupportedTokens {
		if t.Address != f.cfg.StartToken.Address {
			pool = append(pool, t)
		}
	}

	var out [][]domain.TokenRef
	var used = make([]bool, len(pool))
	var build func(picked []domain.TokenRef)
	build = func(picked []domain.TokenRef) {
		if len(picked) == length-1 {
			seq := make([]domain.TokenRef, 0, length+1)
			seq = append(seq, f.cfg.StartToken)
			seq = append(seq, picked...)
			seq = append(seq, f.cfg.StartToken)
			out = append(out, seq)
			return
		}
		for i, t := range pool {
			if used[i] {
				continue
			}
			used[i] = true
			build(append(picked, t))
			used[i] = false
		}
	}
	build(nil)
	return out
}

// venueAssignments returns every length-long sequence drawn (with
// repetition) from enabledVenues - the cartesian product across hops.
func venueAssignments(enabledVenues []domain.VenueID, length int) [][]domain.VenueID {
	out := [][]domain.VenueID{{}}
	for i := 0; i < length; i++ {
		next := make([][]domain.VenueID, 0, len(out)*len(enabledVenues))
		for _, prefix := range out {
			for _, v := range enabledVenues {
				assignment := make([]domain.VenueID, len(prefix), len(prefix)+1)
				copy(assignment, prefix)
				assignment = append(assignment, v)
				next = append(next, assignment)
			}
		}
		out = next
	}
	return out
}

// requiredPairs dedups every (venue, tokenIn, tokenOut) hop across all
// candidates into the single batched Quoting Engine request spec §4.3 step 3
// calls for; multiple fee-tier pools for the same pair are all included so
// the engine can keep the best.
func (f *Finder) requiredPairs(candidates []candidate) []quoting.Pair {
	type seen struct {
		venue domain.VenueID
		in    common.Address
		out   common.Address
		pool  common.Address
	}
	seenSet := make(map[seen]struct{})
	var pairs []quoting.Pair

	for _, c := range candidates {
		for i, v := range c.venues {
			tokenIn, tokenOut := c.tokens[i], c.tokens[i+1]
			for _, pool := range f.pools(v, tokenIn.Address, tokenOut.Address) {
				key := seen{venue: v, in: tokenIn.Address, out: tokenOut.Address, pool: pool.Addr}
				if _, ok := seenSet[key]; ok {
					continue
				}
				seenSet[key] = struct{}{}
				pairs = append(pairs, quoting.Pair{Venue: v, Pool: pool, TokenIn: tokenIn, TokenOut: tokenOut})
			}
		}
	}
	return pairs
}

// compose chains a candidate's already-resolved quotes into a path. Any
// missing hop quote discards the whole candidate (spec §4.3 step 4).
func (f *Finder) compose(c candidate, quotes map[quoting.Key]domain.Quote, amountIn *big.Int, gasPrice *big.Float) (domain.ArbitragePath, bool) {
	steps := make([]domain.PathStep, 0, len(c.venues))
	current := amountIn
	for i, v := range c.venues {
		tokenIn, tokenOut := c.tokens[i], c.tokens[i+1]
		quote, ok := quotes[quoting.Key{Venue: v, TokenIn: tokenIn.Address, TokenOut: tokenOut.Address}]
		if !ok {
			return domain.ArbitragePath{}, false
		}
		steps = append(steps, domain.PathStep{
			Venue:     v,
			Pool:      quote.Pool,
			TokenIn:   tokenIn,
			TokenOut:  tokenOut,
			AmountIn:  current,
			AmountOut: quote.AmountOut,
			Fee:       quote.Pool.Fee,
		})
		current = quote.AmountOut
	}

	gross := new(big.Int).Sub(current, amountIn)
	gas := f.cfg.BaseGas + f.cfg.PerHopGas*uint64(len(steps)-1)

	gasCost := new(big.Float).Mul(new(big.Float).SetUint64(gas), gasPrice)
	gasCostInt, _ := gasCost.Int(nil)
	net := new(big.Int).Sub(gross, gasCostInt)

	margin := new(big.Float).Quo(new(big.Float).SetInt(current), new(big.Float).SetInt(amountIn))
	margin.Sub(margin, big.NewFloat(1))

	return domain.ArbitragePath{
		Steps:        steps,
		TotalGas:     gas,
		GrossProfit:  gross,
		NetProfit:    net,
		ProfitMargin: margin,
	}, true
}
