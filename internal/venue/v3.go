package venue

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/arberr"
	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/transport"
	"github.com/nullmev/arbengine/pkg/numeric"
)

// safelyGetStateOfAMM's shape is grounded directly on the Algebra-style
// pool state call the teacher's pkg/contractclient tests exercise live
// (outputs: sqrtPrice, tick, lastFee, pluginConfig, activeLiquidity,
// nextTick, previousTick).
var v3PoolABIJSON = `[
	{"type":"function","name":"safelyGetStateOfAMM","stateMutability":"view","inputs":[],"outputs":[
		{"name":"sqrtPrice","type":"uint160"},{"name":"tick","type":"int24"},{"name":"lastFee","type":"uint16"},
		{"name":"pluginConfig","type":"uint8"},{"name":"activeLiquidity","type":"uint128"},
		{"name":"nextTick","type":"int24"},{"name":"previousTick","type":"int24"}]},
	{"type":"function","name":"exactInputSingle","stateMutability":"nonpayable","inputs":[{"name":"params","type":"tuple","components":[
		{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"deployer","type":"address"},
		{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"},{"name":"limitSqrtPrice","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]}
]`

var v3QuoterABIJSON = `[
	{"type":"function","name":"quoteExactInputSingle","stateMutability":"nonpayable","inputs":[
		{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"},
		{"name":"limitSqrtPrice","type":"uint160"}],"outputs":[{"name":"amountOut","type":"uint256"},{"name":"fee","type":"uint16"}]}
]`

// V3Adapter implements Adapter for concentrated-liquidity (V3/Algebra-style) pools.
type V3Adapter struct {
	backend   transport.EthBackend
	poolABI   abi.ABI
	quoterABI abi.ABI
	quoter    common.Address
}

func NewV3Adapter(backend transport.EthBackend, quoter common.Address) (*V3Adapter, error) {
	poolABI, err := parseABI(v3PoolABIJSON)
	if err != nil {
		return nil, err
	}
	quoterABI, err := parseABI(v3QuoterABIJSON)
	if err != nil {
		return nil, err
	}
	return &V3Adapter{backend: backend, poolABI: poolABI, quoterABI: quoterABI, quoter: quoter}, nil
}

func (a *V3Adapter) Quote(ctx context.Context, pool domain.Pool, tokenIn, tokenOut domain.TokenRef, amountIn *big.Int) (domain.Quote, error) {
	if pool.Addr == (common.Address{}) {
		return domain.Quote{}, arberr.ErrNoPool
	}
	state, err := a.PoolState(ctx, pool)
	if err != nil {
		return domain.Quote{}, err
	}
	if state.Liquidity == nil || state.Liquidity.Sign() == 0 {
		return domain.Quote{}, arberr.ErrStale
	}
	if amountIn.Sign() == 0 {
		return domain.Quote{Pool: pool, TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: big.NewInt(0), AmountOut: big.NewInt(0), PriceImpact: big.NewFloat(0), BlockHeight: state.BlockHeight}, nil
	}

	quoterClient := transport.NewContractClient(a.backend, a.quoter, a.quoterABI)
	out, err := quoterClient.Call(ctx, nil, "quoteExactInputSingle", tokenIn.Address, tokenOut.Address, amountIn, big.NewInt(0))
	if err != nil {
		return domain.Quote{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "quoteExactInputSingle", Err: err}
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return domain.Quote{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "quoteExactInputSingle", Err: errUnexpectedABIReturn}
	}

	impact, err := a.PriceImpact(domain.Quote{Pool: pool, AmountIn: amountIn, AmountOut: amountOut}, state)
	if err != nil {
		return domain.Quote{}, err
	}

	return domain.Quote{
		Pool:        pool,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		PriceImpact: impact,
		GasEstimate: 180_000,
		BlockHeight: state.BlockHeight,
	}, nil
}

func (a *V3Adapter) EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	return numeric.EncodeV3Path(tokens, fees)
}

func (a *V3Adapter) PoolState(ctx context.Context, pool domain.Pool) (domain.PoolState, error) {
	client := transport.NewContractClient(a.backend, pool.Addr, a.poolABI)
	out, err := client.Call(ctx, nil, "safelyGetStateOfAMM")
	if err != nil {
		return domain.PoolState{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "safelyGetStateOfAMM", Err: err}
	}
	if len(out) < 5 {
		return domain.PoolState{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "safelyGetStateOfAMM", Err: errUnexpectedABIReturn}
	}
	sqrtPrice, _ := out[0].(*big.Int)
	tick, _ := out[1].(*big.Int)
	liquidity, _ := out[4].(*big.Int)
	var tickVal int32
	if tick != nil {
		tickVal = int32(tick.Int64())
	}
	return domain.PoolState{SqrtPriceX96: sqrtPrice, Liquidity: liquidity, Tick: tickVal}, nil
}

// PriceImpact derives the V3 deviation from the sqrt-price before/after the
// trade: impact = |priceAfter - priceBefore| / priceBefore, where priceAfter
// is approximated from the realized exchange rate of the quote (spec §4.1).
func (a *V3Adapter) PriceImpact(quote domain.Quote, preTradeState domain.PoolState) (*big.Float, error) {
	if quote.AmountIn == nil || quote.AmountIn.Sign() == 0 || preTradeState.SqrtPriceX96 == nil {
		return big.NewFloat(0), nil
	}
	priceBefore := numeric.SqrtPriceToPrice(preTradeState.SqrtPriceX96)
	if priceBefore.Sign() == 0 {
		return big.NewFloat(0), nil
	}
	prec := uint(160)
	realizedRate := new(big.Float).SetPrec(prec).Quo(
		new(big.Float).SetPrec(prec).SetInt(quote.AmountOut),
		new(big.Float).SetPrec(prec).SetInt(quote.AmountIn),
	)
	diff := new(big.Float).SetPrec(prec).Sub(priceBefore, realizedRate)
	diff.Abs(diff)
	return diff.Quo(diff, priceBefore), nil
}

func (a *V3Adapter) BuildSwap(step domain.PathStep, recipient common.Address, deadline *big.Int, slippage *big.Float) (CallData, error) {
	minOut := applySlippage(step.AmountOut, slippage)
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Deployer          common.Address
		Recipient         common.Address
		Deadline          *big.Int
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		LimitSqrtPrice    *big.Int
	}{
		TokenIn: step.TokenIn.Address, TokenOut: step.TokenOut.Address,
		Recipient: recipient, Deadline: deadline,
		AmountIn: step.AmountIn, AmountOutMinimum: minOut, LimitSqrtPrice: big.NewInt(0),
	}
	data, err := a.poolABI.Pack("exactInputSingle", params)
	if err != nil {
		return CallData{}, err
	}
	return CallData{To: step.Pool.Addr, Data: data}, nil
}
