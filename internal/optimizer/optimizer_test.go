package optimizer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullmev/arbengine/internal/arberr"
	"github.com/nullmev/arbengine/internal/domain"
)

func pathWithRate(t *testing.T, requiredAmount, netProfit int64) domain.ArbitragePath {
	t.Helper()
	token, err := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	require.NoError(t, err)
	return domain.ArbitragePath{
		Steps: []domain.PathStep{
			{TokenIn: token, TokenOut: token, AmountIn: big.NewInt(requiredAmount), AmountOut: big.NewInt(requiredAmount + netProfit)},
		},
		GrossProfit: big.NewInt(netProfit),
		NetProfit:   big.NewInt(netProfit),
	}
}

func TestAllocateSumsToCapital(t *testing.T) {
	paths := []domain.ArbitragePath{
		pathWithRate(t, 1_000_000, 10_000),
		pathWithRate(t, 1_000_000, 8_000),
		pathWithRate(t, 1_000_000, 2_000),
	}
	opt := NewOptimizer(Config{MaxPaths: 5, MinAllocationShare: big.NewFloat(0.10), SlippageTolerance: big.NewFloat(0.005)})

	token, _ := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	capital := big.NewInt(10_000_000_000)
	plan, err := opt.Allocate(paths, capital, token)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 3)

	sum := big.NewInt(0)
	for _, a := range plan.Allocations {
		sum.Add(sum, a.Amount)
	}
	diff := new(big.Int).Sub(capital, sum)
	diff.Abs(diff)
	assert.LessOrEqual(t, diff.Int64(), int64(10)) // rounding slack, spec's "≤ 1 ulp(C)"
}

func TestAllocateAppliesMinShareFloor(t *testing.T) {
	// third path's raw weight is far below the 10% floor.
	paths := []domain.ArbitragePath{
		pathWithRate(t, 1_000_000, 10_000),
		pathWithRate(t, 1_000_000, 8_000),
		pathWithRate(t, 1_000_000, 200),
	}
	opt := NewOptimizer(Config{MaxPaths: 5, MinAllocationShare: big.NewFloat(0.10), SlippageTolerance: big.NewFloat(0.005)})

	token, _ := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	capital := big.NewInt(10_000_000_000)
	plan, err := opt.Allocate(paths, capital, token)
	require.NoError(t, err)

	minFloor := new(big.Float).Mul(big.NewFloat(0.10), new(big.Float).SetInt(capital))
	minFloorInt, _ := minFloor.Int(nil)
	assert.GreaterOrEqual(t, plan.Allocations[2].Amount.Cmp(minFloorInt), -1)
}

func TestAllocateCapsToMaxPaths(t *testing.T) {
	paths := []domain.ArbitragePath{
		pathWithRate(t, 1_000_000, 10_000),
		pathWithRate(t, 1_000_000, 8_000),
		pathWithRate(t, 1_000_000, 6_000),
		pathWithRate(t, 1_000_000, 4_000),
	}
	opt := NewOptimizer(Config{MaxPaths: 2, MinAllocationShare: big.NewFloat(0.05), SlippageTolerance: big.NewFloat(0.005)})

	token, _ := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	plan, err := opt.Allocate(paths, big.NewInt(1_000_000_000), token)
	require.NoError(t, err)
	assert.Len(t, plan.Allocations, 2)
	assert.Equal(t, int64(10_000), plan.Allocations[0].Path.NetProfit.Int64())
	assert.Equal(t, int64(8_000), plan.Allocations[1].Path.NetProfit.Int64())
}

func TestAllocateMonotoneInRho(t *testing.T) {
	base := []domain.ArbitragePath{
		pathWithRate(t, 1_000_000, 10_000),
		pathWithRate(t, 1_000_000, 8_000),
	}
	boosted := []domain.ArbitragePath{
		pathWithRate(t, 1_000_000, 20_000),
		pathWithRate(t, 1_000_000, 8_000),
	}
	opt := NewOptimizer(Config{MaxPaths: 5, MinAllocationShare: big.NewFloat(0.05), SlippageTolerance: big.NewFloat(0.005)})
	token, _ := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	capital := big.NewInt(10_000_000_000)

	planBase, err := opt.Allocate(base, capital, token)
	require.NoError(t, err)
	planBoosted, err := opt.Allocate(boosted, capital, token)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, planBoosted.Allocations[0].Amount.Cmp(planBase.Allocations[0].Amount), 0)
}

func TestAllocateNoPathsReturnsErrNoPaths(t *testing.T) {
	opt := NewOptimizer(Config{})
	token, _ := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	_, err := opt.Allocate(nil, big.NewInt(1), token)
	assert.ErrorIs(t, err, arberr.ErrNoPaths)
}
