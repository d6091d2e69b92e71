package venue

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullmev/arbengine/internal/arberr"
	"github.com/nullmev/arbengine/internal/domain"
)

type fakeV2Backend struct {
	reserve0, reserve1 *big.Int
}

func (f *fakeV2Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	parsed, _ := parseABI(v2PairABIJSON)
	return parsed.Methods["getReserves"].Outputs.Pack(f.reserve0, f.reserve1, uint32(0))
}
func (f *fakeV2Backend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return nil, false, nil
}
func (f *fakeV2Backend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *fakeV2Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (f *fakeV2Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 0, nil
}

func testPool(tokens ...domain.TokenRef) domain.Pool {
	return domain.Pool{
		Venue:  "test-v2",
		Addr:   common.HexToAddress("0xpool"),
		Tokens: tokens,
		Fee:    3000,
		Type:   domain.PoolTypeV2,
	}
}

func TestV2AdapterQuote(t *testing.T) {
	token0, _ := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	token1, _ := domain.NewTokenRef(common.HexToAddress("0xbbb"), 6)
	pool := testPool(token0, token1)

	backend := &fakeV2Backend{reserve0: big.NewInt(1000e9), reserve1: big.NewInt(2000e9)}
	adapter, err := NewV2Adapter(backend)
	require.NoError(t, err)

	quote, err := adapter.Quote(context.Background(), pool, token0, token1, big.NewInt(1e9))
	require.NoError(t, err)
	assert.Equal(t, 1, quote.AmountOut.Cmp(big.NewInt(0)))
	assert.Equal(t, -1, quote.PriceImpact.Cmp(big.NewFloat(1)))
}

func TestV2AdapterQuoteZeroAmount(t *testing.T) {
	token0, _ := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	token1, _ := domain.NewTokenRef(common.HexToAddress("0xbbb"), 6)
	pool := testPool(token0, token1)

	backend := &fakeV2Backend{reserve0: big.NewInt(1000e9), reserve1: big.NewInt(2000e9)}
	adapter, err := NewV2Adapter(backend)
	require.NoError(t, err)

	quote, err := adapter.Quote(context.Background(), pool, token0, token1, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, 0, quote.AmountOut.Cmp(big.NewInt(0)))
}

func TestV2AdapterQuoteNoPool(t *testing.T) {
	token0, _ := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	token1, _ := domain.NewTokenRef(common.HexToAddress("0xbbb"), 6)
	pool := domain.Pool{Tokens: []domain.TokenRef{token0, token1}}

	adapter, err := NewV2Adapter(&fakeV2Backend{})
	require.NoError(t, err)

	_, err = adapter.Quote(context.Background(), pool, token0, token1, big.NewInt(1))
	assert.ErrorIs(t, err, arberr.ErrNoPool)
}

func TestV2AdapterQuoteStaleOnZeroReserves(t *testing.T) {
	token0, _ := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	token1, _ := domain.NewTokenRef(common.HexToAddress("0xbbb"), 6)
	pool := testPool(token0, token1)

	backend := &fakeV2Backend{reserve0: big.NewInt(0), reserve1: big.NewInt(0)}
	adapter, err := NewV2Adapter(backend)
	require.NoError(t, err)

	_, err = adapter.Quote(context.Background(), pool, token0, token1, big.NewInt(1e9))
	assert.ErrorIs(t, err, arberr.ErrStale)
}

func TestV2AdapterBuildSwapAppliesSlippage(t *testing.T) {
	token0, _ := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	token1, _ := domain.NewTokenRef(common.HexToAddress("0xbbb"), 6)
	pool := testPool(token0, token1)

	adapter, err := NewV2Adapter(&fakeV2Backend{})
	require.NoError(t, err)

	step := domain.PathStep{
		Pool: pool, TokenIn: token0, TokenOut: token1,
		AmountIn: big.NewInt(1e9), AmountOut: big.NewInt(1000),
	}
	callData, err := adapter.BuildSwap(step, common.HexToAddress("0xrecipient"), big.NewInt(999999), big.NewFloat(0.01))
	require.NoError(t, err)
	assert.Equal(t, pool.Addr, callData.To)
	assert.NotEmpty(t, callData.Data)
}
