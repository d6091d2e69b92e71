package transport

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterBackoffCapsAtMax(t *testing.T) {
	l := NewLimiter(10, 1, 2*time.Second)
	assert.Equal(t, 100*time.Millisecond, l.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, l.Backoff(1))
	assert.Equal(t, 2*time.Second, l.Backoff(10)) // 102.4s without the ceiling
}

func TestLimiterWaitRespectsContext(t *testing.T) {
	l := NewLimiter(0.0001, 1, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// first token is available immediately (burst=1)
	assert.NoError(t, l.Wait(ctx))
	// second call exhausts burst and must wait longer than the context allows
	assert.Error(t, l.Wait(ctx))
}

type countingBackend struct{ calls int }

func (c *countingBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.calls++
	return nil, nil
}
func (c *countingBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return nil, false, nil
}
func (c *countingBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (c *countingBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (c *countingBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 0, nil
}

func TestRateLimitedBackendWaitsBeforeDelegating(t *testing.T) {
	backend := &countingBackend{}
	rl := NewRateLimitedBackend(backend, NewLimiter(1000, 4, time.Second))

	_, err := rl.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls)
}

func TestRateLimitedBackendPropagatesContextCancellation(t *testing.T) {
	backend := &countingBackend{}
	rl := NewRateLimitedBackend(backend, NewLimiter(0.0001, 1, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, rl.limiter.Wait(context.Background())) // drain the single burst token
	_, err := rl.CallContract(ctx, ethereum.CallMsg{}, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, backend.calls)
}
