package transport

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate's token bucket and adds Backoff, an
// exponential delay schedule capped at a maximum. RateLimitedBackend only
// waits on the bucket; nothing in this package calls Backoff or retries a
// failed call. golang.org/x/time/rate is already pulled in transitively by
// go-ethereum; this promotes it to the engine's explicit rate limiter
// rather than hand-rolling a token bucket.
type Limiter struct {
	bucket     *rate.Limiter
	maxBackoff time.Duration
}

// NewLimiter builds a Limiter allowing rps requests per second, bursting up
// to batchSize, with backoff capped at maxBackoff.
func NewLimiter(rps float64, batchSize int, maxBackoff time.Duration) *Limiter {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Limiter{
		bucket:     rate.NewLimiter(rate.Limit(rps), batchSize),
		maxBackoff: maxBackoff,
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Backoff returns the delay to apply before attempt n (0-indexed),
// exponential with a ceiling at maxBackoff.
func (l *Limiter) Backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if d > l.maxBackoff {
		return l.maxBackoff
	}
	return d
}

// RateLimitedBackend wraps an EthBackend so every call waits on a
// process-wide Limiter first (spec §5: "the rate limiter is process-wide").
// Pool adapters and the quoting engine see no difference from a bare
// ethclient.Client; only main.go knows this wrapping happened.
type RateLimitedBackend struct {
	backend EthBackend
	limiter *Limiter
}

// NewRateLimitedBackend wraps backend with limiter.
func NewRateLimitedBackend(backend EthBackend, limiter *Limiter) *RateLimitedBackend {
	return &RateLimitedBackend{backend: backend, limiter: limiter}
}

func (r *RateLimitedBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.backend.CallContract(ctx, call, blockNumber)
}

func (r *RateLimitedBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}
	return r.backend.TransactionByHash(ctx, hash)
}

func (r *RateLimitedBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.backend.TransactionReceipt(ctx, hash)
}

func (r *RateLimitedBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.backend.SendTransaction(ctx, tx)
}

func (r *RateLimitedBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return r.backend.EstimateGas(ctx, call)
}
