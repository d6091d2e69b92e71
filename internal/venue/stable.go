package venue

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/arberr"
	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/transport"
)

var stablePoolABIJSON = `[
	{"type":"function","name":"getBalances","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
	{"type":"function","name":"A","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"exchange","stateMutability":"nonpayable","inputs":[
		{"name":"i","type":"int128"},{"name":"j","type":"int128"},{"name":"dx","type":"uint256"},{"name":"minDy","type":"uint256"}],"outputs":[]}
]`

// StableAdapter implements Adapter for Curve-style stableswap pools, two
// assets only (the common case; venue config pins token index order).
type StableAdapter struct {
	backend transport.EthBackend
	abi     abi.ABI
}

func NewStableAdapter(backend transport.EthBackend) (*StableAdapter, error) {
	parsed, err := parseABI(stablePoolABIJSON)
	if err != nil {
		return nil, err
	}
	return &StableAdapter{backend: backend, abi: parsed}, nil
}

func (a *StableAdapter) Quote(ctx context.Context, pool domain.Pool, tokenIn, tokenOut domain.TokenRef, amountIn *big.Int) (domain.Quote, error) {
	if pool.Addr == (common.Address{}) {
		return domain.Quote{}, arberr.ErrNoPool
	}
	state, err := a.PoolState(ctx, pool)
	if err != nil {
		return domain.Quote{}, err
	}
	if len(state.Balances) < 2 || state.Balances[0].Sign() == 0 || state.Balances[1].Sign() == 0 {
		return domain.Quote{}, arberr.ErrStale
	}
	if amountIn.Sign() == 0 {
		return domain.Quote{Pool: pool, TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: big.NewInt(0), AmountOut: big.NewInt(0), PriceImpact: big.NewFloat(0), BlockHeight: state.BlockHeight}, nil
	}

	i, j := 0, 1
	if len(pool.Tokens) >= 1 && tokenIn.Address != pool.Tokens[0].Address {
		i, j = 1, 0
	}

	amountOut := stableGetDy(state.Balances[i], state.Balances[j], amountIn, state.AmpCoeff)

	return domain.Quote{
		Pool:        pool,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		PriceImpact: stablePriceImpact(state.Balances[i], state.Balances[j], amountIn, amountOut),
		GasEstimate: 150_000,
		BlockHeight: state.BlockHeight,
	}, nil
}

func (a *StableAdapter) EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	buf := make([]byte, 0, 20*len(tokens))
	for _, t := range tokens {
		buf = append(buf, t.Bytes()...)
	}
	return buf, nil
}

func (a *StableAdapter) PoolState(ctx context.Context, pool domain.Pool) (domain.PoolState, error) {
	client := transport.NewContractClient(a.backend, pool.Addr, a.abi)
	balOut, err := client.Call(ctx, nil, "getBalances")
	if err != nil {
		return domain.PoolState{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "getBalances", Err: err}
	}
	balances, ok := balOut[0].([]*big.Int)
	if !ok {
		return domain.PoolState{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "getBalances", Err: errUnexpectedABIReturn}
	}
	ampOut, err := client.Call(ctx, nil, "A")
	if err != nil {
		return domain.PoolState{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "A", Err: err}
	}
	amp, ok := ampOut[0].(*big.Int)
	if !ok {
		return domain.PoolState{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "A", Err: errUnexpectedABIReturn}
	}
	return domain.PoolState{Balances: balances, AmpCoeff: amp}, nil
}

// PriceImpact returns the residual of the invariant: the relative
// difference between the realized exchange rate and the pool's 1:1
// marginal rate at the current balances (spec §4.1: "for Stable: residual
// of the invariant").
func (a *StableAdapter) PriceImpact(quote domain.Quote, preTradeState domain.PoolState) (*big.Float, error) {
	if len(preTradeState.Balances) < 2 {
		return big.NewFloat(0), nil
	}
	return stablePriceImpact(preTradeState.Balances[0], preTradeState.Balances[1], quote.AmountIn, quote.AmountOut), nil
}

func (a *StableAdapter) BuildSwap(step domain.PathStep, recipient common.Address, deadline *big.Int, slippage *big.Float) (CallData, error) {
	minOut := applySlippage(step.AmountOut, slippage)
	i, j := big.NewInt(0), big.NewInt(1)
	if len(step.Pool.Tokens) >= 1 && step.TokenIn.Address != step.Pool.Tokens[0].Address {
		i, j = big.NewInt(1), big.NewInt(0)
	}
	data, err := a.abi.Pack("exchange", i, j, step.AmountIn, minOut)
	if err != nil {
		return CallData{}, err
	}
	return CallData{To: step.Pool.Addr, Data: data}, nil
}

// stableGetDy computes the output amount for a 2-asset StableSwap invariant
// via Newton's method on both D (the invariant) and the post-trade balance
// of the output asset, the standard Curve-style formulation.
func stableGetDy(balIn, balOut, dx, amp *big.Int) *big.Int {
	if amp == nil || amp.Sign() == 0 {
		amp = big.NewInt(100)
	}
	d := stableInvariantD([]*big.Int{balIn, balOut}, amp)
	newBalIn := new(big.Int).Add(balIn, dx)
	newBalOut := stableGetY(newBalIn, d, amp)
	dy := new(big.Int).Sub(balOut, newBalOut)
	if dy.Sign() < 0 {
		return big.NewInt(0)
	}
	return dy
}

// stableInvariantD solves A*n^n*S + D = A*D*n^n + D^(n+1)/(n^n*P) for n=2
// assets by Newton iteration.
func stableInvariantD(balances []*big.Int, amp *big.Int) *big.Int {
	n := big.NewInt(int64(len(balances)))
	sum := big.NewInt(0)
	for _, b := range balances {
		sum.Add(sum, b)
	}
	if sum.Sign() == 0 {
		return big.NewInt(0)
	}
	ann := new(big.Int).Mul(amp, n)
	ann.Mul(ann, n) // A*n^2 for n=2 (n^n == n^2 here)

	d := new(big.Int).Set(sum)
	for i := 0; i < 255; i++ {
		dP := new(big.Int).Set(d)
		for _, b := range balances {
			denom := new(big.Int).Mul(b, n)
			if denom.Sign() == 0 {
				return d
			}
			dP.Mul(dP, d)
			dP.Div(dP, denom)
		}
		prevD := d
		numerator := new(big.Int).Mul(ann, sum)
		numerator.Add(numerator, new(big.Int).Mul(dP, n))
		numerator.Mul(numerator, d)

		denominator := new(big.Int).Sub(ann, big.NewInt(1))
		denominator.Mul(denominator, d)
		denominator.Add(denominator, new(big.Int).Mul(new(big.Int).Add(n, big.NewInt(1)), dP))
		if denominator.Sign() == 0 {
			return d
		}
		d = numerator.Div(numerator, denominator)

		diff := new(big.Int).Sub(d, prevD)
		diff.Abs(diff)
		if diff.Cmp(big.NewInt(1)) <= 0 {
			break
		}
	}
	return d
}

// stableGetY solves for the balance of the second asset given the first
// asset's new balance and the invariant D, n=2 assets.
func stableGetY(x, d, amp *big.Int) *big.Int {
	n := big.NewInt(2)
	ann := new(big.Int).Mul(amp, n)
	ann.Mul(ann, n)

	c := new(big.Int).Mul(d, d)
	c.Div(c, new(big.Int).Mul(x, n))
	c.Mul(c, d)
	c.Div(c, new(big.Int).Mul(ann, n))

	b := new(big.Int).Add(x, new(big.Int).Div(d, ann))

	y := new(big.Int).Set(d)
	for i := 0; i < 255; i++ {
		prevY := new(big.Int).Set(y)
		numerator := new(big.Int).Mul(y, y)
		numerator.Add(numerator, c)
		denominator := new(big.Int).Mul(big.NewInt(2), y)
		denominator.Add(denominator, b)
		denominator.Sub(denominator, d)
		if denominator.Sign() == 0 {
			break
		}
		y = numerator.Div(numerator, denominator)

		diff := new(big.Int).Sub(y, prevY)
		diff.Abs(diff)
		if diff.Cmp(big.NewInt(1)) <= 0 {
			break
		}
	}
	return y
}

func stablePriceImpact(balIn, balOut, amountIn, amountOut *big.Int) *big.Float {
	if balIn == nil || balOut == nil || amountIn == nil || amountIn.Sign() == 0 {
		return big.NewFloat(0)
	}
	prec := uint(128)
	// marginal 1:1 expectation; the pool balances are not used
	expected := new(big.Float).SetPrec(prec).SetInt(amountIn)
	actual := new(big.Float).SetPrec(prec).SetInt(amountOut)
	diff := new(big.Float).SetPrec(prec).Sub(expected, actual)
	diff.Abs(diff)
	if expected.Sign() == 0 {
		return big.NewFloat(0)
	}
	return diff.Quo(diff, expected)
}
