// Package numeric holds the fixed-point and price-math primitives shared by
// every pool adapter and by the path finder / optimizer. Amounts are always
// represented as *big.Int in the token's smallest unit; ratios and prices
// use *big.Float. The one float64 input here is the tick base 1.0001, which
// is converted to *big.Float once.
package numeric

import (
	"math/big"
)

// Q96 is 2^96, the fixed-point scale Uniswap-v3-family pools use for sqrtPriceX96.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// tickBase is 1.0001, the per-tick price ratio of concentrated-liquidity pools.
var tickBase = big.NewFloat(1.0001)

// TickToSqrtPriceX96 converts a tick index to its Q64.96 sqrt-price
// representation: sqrtPriceX96 = sqrt(1.0001^tick) * 2^96.
func TickToSqrtPriceX96(tick int) *big.Int {
	prec := uint(160)
	base := new(big.Float).SetPrec(prec).Set(tickBase)
	if tick < 0 {
		base = new(big.Float).SetPrec(prec).Quo(big.NewFloat(1), base)
		tick = -tick
	}

	// exponentiation by squaring: result = base^tick
	result := big.NewFloat(1).SetPrec(prec)
	b := base
	e := tick
	for e > 0 {
		if e&1 == 1 {
			result.Mul(result, b)
		}
		b = new(big.Float).SetPrec(prec).Mul(b, b)
		e >>= 1
	}

	sqrtRatio := sqrtFloat(result, prec)
	scaled := new(big.Float).SetPrec(prec).Mul(sqrtRatio, new(big.Float).SetPrec(prec).SetInt(Q96))

	out, _ := scaled.Int(nil)
	return out
}

// SqrtPriceToPrice converts a Q64.96 sqrt price into the plain token1/token0 price.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	prec := uint(160)
	ratio := new(big.Float).SetPrec(prec).Quo(
		new(big.Float).SetPrec(prec).SetInt(sqrtPriceX96),
		new(big.Float).SetPrec(prec).SetInt(Q96),
	)
	return new(big.Float).SetPrec(prec).Mul(ratio, ratio)
}

// sqrtFloat computes sqrt(x) via Newton's method; big.Float has no built-in Sqrt
// prior to the generic math/big API used elsewhere in the corpus, so this is a
// small hand-rolled iteration, matching the precision-explicit style used
// throughout this package.
func sqrtFloat(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return new(big.Float).SetPrec(prec)
	}
	z := new(big.Float).SetPrec(prec).Copy(x)
	one := big.NewFloat(1).SetPrec(prec)
	two := big.NewFloat(2).SetPrec(prec)
	for i := 0; i < 64; i++ {
		// z = z - (z*z - x) / (2*z) = (z + x/z) / 2
		next := new(big.Float).SetPrec(prec).Quo(x, z)
		next.Add(next, z)
		next.Quo(next, two)
		if next.Cmp(z) == 0 {
			z = next
			break
		}
		z = next
	}
	_ = one
	return z
}

// V2AmountOut implements the constant-product output formula from spec §4.1:
// y_out = (dx*r*R_y) / (R_x*feeDenom + dx*r), r = feeDenom - feeNum.
func V2AmountOut(amountIn, reserveIn, reserveOut, feeNum, feeDenom *big.Int) *big.Int {
	if amountIn.Sign() == 0 {
		return big.NewInt(0)
	}
	r := new(big.Int).Sub(feeDenom, feeNum)
	numerator := new(big.Int).Mul(amountIn, r)
	numerator.Mul(numerator, reserveOut)

	denominator := new(big.Int).Mul(reserveIn, feeDenom)
	denominator.Add(denominator, new(big.Int).Mul(amountIn, r))

	if denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	return numerator.Div(numerator, denominator)
}

// V2PriceImpact is |expected - actual| / expected using pre-trade reserves,
// where expected is the marginal (zero-slippage) output at the pool's
// current spot price.
func V2PriceImpact(amountIn, amountOut, reserveIn, reserveOut *big.Int) *big.Float {
	if reserveIn.Sign() == 0 || amountIn.Sign() == 0 {
		return big.NewFloat(0)
	}
	prec := uint(128)
	expected := new(big.Float).SetPrec(prec).SetInt(amountIn)
	expected.Mul(expected, new(big.Float).SetPrec(prec).SetInt(reserveOut))
	expected.Quo(expected, new(big.Float).SetPrec(prec).SetInt(reserveIn))

	actual := new(big.Float).SetPrec(prec).SetInt(amountOut)

	diff := new(big.Float).SetPrec(prec).Sub(expected, actual)
	diff.Abs(diff)

	if expected.Sign() == 0 {
		return big.NewFloat(0)
	}
	return diff.Quo(diff, expected)
}

// Clamp returns x clamped into [lo, hi].
func Clamp(x, lo, hi *big.Float) *big.Float {
	if x.Cmp(lo) < 0 {
		return new(big.Float).Copy(lo)
	}
	if x.Cmp(hi) > 0 {
		return new(big.Float).Copy(hi)
	}
	return x
}

// MulFraction computes x * num / den for big.Int x, truncating the quotient
// (big.Int Euclidean division), staying in
// integer arithmetic throughout (used for gas/fee scaling where inputs are
// already wei-denominated integers).
func MulFraction(x *big.Int, numPct, denPct int64) *big.Int {
	out := new(big.Int).Mul(x, big.NewInt(numPct))
	return out.Div(out, big.NewInt(denPct))
}
