package venue

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStableGetDyBalancedPoolNearParity(t *testing.T) {
	balIn := big.NewInt(1_000_000e6)
	balOut := big.NewInt(1_000_000e6)
	dx := big.NewInt(1000e6)
	amp := big.NewInt(100)

	dy := stableGetDy(balIn, balOut, dx, amp)
	assert.Equal(t, 1, dy.Cmp(big.NewInt(0)))

	// a balanced high-A stable pool should return close to 1:1 for a small trade
	diff := new(big.Int).Sub(dx, dy)
	diff.Abs(diff)
	tolerance := big.NewInt(10e6) // within 1% of dx
	assert.Equal(t, -1, diff.Cmp(tolerance))
}

func TestStableGetDyNeverNegative(t *testing.T) {
	balIn := big.NewInt(100e6)
	balOut := big.NewInt(100e6)
	dx := big.NewInt(10_000_000e6) // wildly oversized trade
	amp := big.NewInt(10)

	dy := stableGetDy(balIn, balOut, dx, amp)
	assert.GreaterOrEqual(t, dy.Cmp(big.NewInt(0)), 0) // dy >= 0
}

func TestStablePriceImpactZeroOnZeroAmountIn(t *testing.T) {
	impact := stablePriceImpact(big.NewInt(100), big.NewInt(100), big.NewInt(0), big.NewInt(0))
	assert.Equal(t, 0, impact.Cmp(big.NewFloat(0)))
}
