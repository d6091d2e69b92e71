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

const feeDenom = 1_000_000 // spec §4.1: fee value in [0, 10_000] of a 1e6 denom (hundredths of a bip)

var v2PairABIJSON = `[
	{"type":"function","name":"getReserves","stateMutability":"view","inputs":[],"outputs":[
		{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]},
	{"type":"function","name":"swap","stateMutability":"nonpayable","inputs":[
		{"name":"amount0Out","type":"uint256"},{"name":"amount1Out","type":"uint256"},
		{"name":"to","type":"address"},{"name":"data","type":"bytes"}],"outputs":[]}
]`

// V2Adapter implements Adapter for constant-product (V2-style) pools.
type V2Adapter struct {
	newClient func(pool domain.Pool) (*transport.ContractClient, error)
	abi       abi.ABI
}

// NewV2Adapter builds a V2Adapter; backend supplies the EthBackend used to
// construct a ContractClient bound to each pool's address on demand (pools
// share one ABI but differ in address).
func NewV2Adapter(backend transport.EthBackend) (*V2Adapter, error) {
	parsed, err := parseABI(v2PairABIJSON)
	if err != nil {
		return nil, err
	}
	return &V2Adapter{
		newClient: func(pool domain.Pool) (*transport.ContractClient, error) {
			return transport.NewContractClient(backend, pool.Addr, parsed), nil
		},
		abi: parsed,
	}, nil
}

func (a *V2Adapter) Quote(ctx context.Context, pool domain.Pool, tokenIn, tokenOut domain.TokenRef, amountIn *big.Int) (domain.Quote, error) {
	if pool.Addr == (common.Address{}) {
		return domain.Quote{}, arberr.ErrNoPool
	}

	state, err := a.PoolState(ctx, pool)
	if err != nil {
		return domain.Quote{}, err
	}

	if amountIn.Sign() == 0 {
		return domain.Quote{Pool: pool, TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: big.NewInt(0), AmountOut: big.NewInt(0), PriceImpact: big.NewFloat(0), BlockHeight: state.BlockHeight}, nil
	}

	reserveIn, reserveOut := orderedReserves(pool, tokenIn, state)
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 || new(big.Int).Mul(reserveIn, reserveOut).Sign() == 0 {
		return domain.Quote{}, arberr.ErrStale
	}

	feeNum := big.NewInt(int64(feeDenom) - int64(pool.Fee))
	amountOut := numeric.V2AmountOut(amountIn, reserveIn, reserveOut, big.NewInt(int64(pool.Fee)), big.NewInt(feeDenom))
	_ = feeNum

	impact := numeric.V2PriceImpact(amountIn, amountOut, reserveIn, reserveOut)

	return domain.Quote{
		Pool:        pool,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		PriceImpact: impact,
		GasEstimate: 120_000,
		BlockHeight: state.BlockHeight,
	}, nil
}

func (a *V2Adapter) EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	// V2-family: [t0, t1] as an address array, not a packed byte string;
	// callers encode tokens themselves via numeric.EncodeV2Path. Kept here
	// only to satisfy the Adapter interface uniformly across families.
	addrs, err := numeric.EncodeV2Path(tokens)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 20*len(addrs))
	for _, addr := range addrs {
		buf = append(buf, addr.Bytes()...)
	}
	return buf, nil
}

func (a *V2Adapter) PoolState(ctx context.Context, pool domain.Pool) (domain.PoolState, error) {
	client, err := a.newClient(pool)
	if err != nil {
		return domain.PoolState{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "PoolState", Err: err}
	}
	out, err := client.Call(ctx, nil, "getReserves")
	if err != nil {
		return domain.PoolState{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "getReserves", Err: err}
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return domain.PoolState{}, &arberr.AdapterError{Venue: string(pool.Venue), Op: "getReserves", Err: errUnexpectedABIReturn}
	}
	return domain.PoolState{Reserve0: r0, Reserve1: r1}, nil
}

func (a *V2Adapter) PriceImpact(quote domain.Quote, preTradeState domain.PoolState) (*big.Float, error) {
	reserveIn, reserveOut := orderedReserves(quote.Pool, quote.TokenIn, preTradeState)
	return numeric.V2PriceImpact(quote.AmountIn, quote.AmountOut, reserveIn, reserveOut), nil
}

func (a *V2Adapter) BuildSwap(step domain.PathStep, recipient common.Address, deadline *big.Int, slippage *big.Float) (CallData, error) {
	minOut := applySlippage(step.AmountOut, slippage)
	zero := big.NewInt(0)
	amount0Out, amount1Out := zero, minOut
	if step.TokenOut.Address.Cmp(step.TokenIn.Address) < 0 {
		amount0Out, amount1Out = minOut, zero
	}
	data, err := a.abi.Pack("swap", amount0Out, amount1Out, recipient, []byte{})
	if err != nil {
		return CallData{}, err
	}
	return CallData{To: step.Pool.Addr, Data: data}, nil
}

// orderedReserves returns (reserveIn, reserveOut) respecting the pool's
// token0 < token1 address ordering.
func orderedReserves(pool domain.Pool, tokenIn domain.TokenRef, state domain.PoolState) (*big.Int, *big.Int) {
	if len(pool.Tokens) >= 1 && tokenIn.Address == pool.Tokens[0].Address {
		return state.Reserve0, state.Reserve1
	}
	return state.Reserve1, state.Reserve0
}

// applySlippage returns amountOut scaled down by (1 - slippage), the minimum
// acceptable output for a swap call.
func applySlippage(amountOut *big.Int, slippage *big.Float) *big.Int {
	one := big.NewFloat(1)
	factor := new(big.Float).Sub(one, slippage)
	scaled := new(big.Float).Mul(new(big.Float).SetInt(amountOut), factor)
	out, _ := scaled.Int(nil)
	return out
}
