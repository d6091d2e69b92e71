// Package optimizer implements the Multi-Path Optimizer (spec §4.4): given
// up to max_paths ArbitragePaths and a capital budget, it allocates capital
// across them to maximize expected, slippage-adjusted profit.
//
// Grounded on original_source's multi_path_optimizer.py: proportional
// weighting by marginal profit rate, a minimum-allocation floor applied to
// any already-positive weight, renormalization to one, and the quadratic
// slippage model used to discount expected profit.
package optimizer

import (
	"math/big"
	"sort"

	"github.com/nullmev/arbengine/internal/arberr"
	"github.com/nullmev/arbengine/internal/domain"
)

// Config holds the optimizer's bounds (spec §6: max_paths,
// min_allocation_share, slippage_tolerance).
type Config struct {
	MaxPaths           int
	MinAllocationShare *big.Float
	SlippageTolerance  *big.Float
}

type Optimizer struct {
	cfg Config
}

func NewOptimizer(cfg Config) *Optimizer {
	if cfg.MaxPaths < 1 {
		cfg.MaxPaths = 1
	}
	if cfg.MinAllocationShare == nil {
		cfg.MinAllocationShare = big.NewFloat(0.05)
	}
	if cfg.SlippageTolerance == nil {
		cfg.SlippageTolerance = big.NewFloat(0.005)
	}
	return &Optimizer{cfg: cfg}
}

// Allocate computes an AllocationPlan for paths over capital. Paths beyond
// MaxPaths are dropped, keeping the top-MaxPaths by quoted expected profit
// (spec §4.4 constraint "K ≤ max_paths").
func (o *Optimizer) Allocate(paths []domain.ArbitragePath, capital *big.Int, startToken domain.TokenRef) (domain.AllocationPlan, error) {
	if len(paths) == 0 {
		return domain.AllocationPlan{}, arberr.ErrNoPaths
	}

	paths = o.selectTopPaths(paths)

	rho := make([]*big.Float, len(paths))
	required := make([]*big.Int, len(paths))
	for i, p := range paths {
		required[i] = p.Steps[0].AmountIn
		rho[i] = new(big.Float).Quo(new(big.Float).SetInt(p.NetProfit), new(big.Float).SetInt(required[i]))
	}

	weights := o.weights(rho)

	allocations := make([]domain.PathAllocation, len(paths))
	expectedProfit := new(big.Float)
	for i, p := range paths {
		amount := new(big.Float).Mul(weights[i], new(big.Float).SetInt(capital))
		amountInt, _ := amount.Int(nil)
		allocations[i] = domain.PathAllocation{Path: p, Amount: amountInt}

		if amountInt.Sign() == 0 {
			continue
		}
		slip := slippageFactor(o.cfg.SlippageTolerance, amountInt, required[i])
		pathProfit := new(big.Float).Mul(rho[i], amount)
		pathProfit.Mul(pathProfit, new(big.Float).Sub(big.NewFloat(1), slip))
		expectedProfit.Add(expectedProfit, pathProfit)
	}

	return domain.AllocationPlan{
		StartToken:     startToken,
		Allocations:    allocations,
		ExpectedProfit: expectedProfit,
	}, nil
}

// selectTopPaths keeps the top MaxPaths by NetProfit, stable for ties.
func (o *Optimizer) selectTopPaths(paths []domain.ArbitragePath) []domain.ArbitragePath {
	if len(paths) <= o.cfg.MaxPaths {
		return paths
	}
	sorted := make([]domain.ArbitragePath, len(paths))
	copy(sorted, paths)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NetProfit.Cmp(sorted[j].NetProfit) > 0
	})
	return sorted[:o.cfg.MaxPaths]
}

// weights computes proportional weights from rho, floors any
// already-positive weight to MinAllocationShare, and renormalizes to 1
// (spec §4.4: "weights proportional to ρ_i, floor to min_allocation_share
// where non-zero, renormalize to 1"). This is monotone: increasing any ρ_i
// strictly increases its own weight share (or leaves it floored) and never
// increases another path's weight, so a_i never decreases.
func (o *Optimizer) weights(rho []*big.Float) []*big.Float {
	sum := new(big.Float)
	for _, r := range rho {
		sum.Add(sum, r)
	}

	weights := make([]*big.Float, len(rho))
	if sum.Sign() <= 0 {
		equal := big.NewFloat(1 / float64(len(rho)))
		for i := range weights {
			weights[i] = new(big.Float).Copy(equal)
		}
		return weights
	}

	for i, r := range rho {
		w := new(big.Float).Quo(r, sum)
		if w.Sign() > 0 && w.Cmp(o.cfg.MinAllocationShare) < 0 {
			w = new(big.Float).Copy(o.cfg.MinAllocationShare)
		}
		weights[i] = w
	}

	total := new(big.Float)
	for _, w := range weights {
		total.Add(total, w)
	}
	if total.Sign() > 0 {
		for i := range weights {
			weights[i].Quo(weights[i], total)
		}
	}
	return weights
}

// slippageFactor implements s_i(a_i) = slippage_tolerance * (a_i /
// required_amount_i)^2, clamped to 0.5 (spec §4.4).
func slippageFactor(tolerance *big.Float, allocation, required *big.Int) *big.Float {
	if required.Sign() == 0 {
		return new(big.Float).Copy(tolerance)
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(allocation), new(big.Float).SetInt(required))
	ratio.Mul(ratio, ratio)
	s := new(big.Float).Mul(tolerance, ratio)
	if s.Cmp(big.NewFloat(0.5)) > 0 {
		return big.NewFloat(0.5)
	}
	return s
}
