// Package venue implements the Pool Adapters (spec §4.1) and the Venue
// Registry (spec §4.2): one adapter per venue family translating a
// canonical quote/encode/build request into venue-specific on-chain
// semantics, and a registry that owns adapter instances and validates
// configuration.
package venue

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/domain"
)

// CallData is the ABI-encoded payload for a state-changing swap call, ready
// to be wrapped into a transaction by the Bundle Assembler.
type CallData struct {
	To   common.Address
	Data []byte
}

// Adapter is the capability interface every pool-family implementation
// satisfies (spec §4.1, Design Notes §9: "a capability interface ... prefer
// a sum type when the set is fixed at compile time" — the set of families
// is fixed, V2/V3/Stable, but each has an independent on-chain call shape
// dense enough that a shared interface reads more naturally than a closed
// sum type with per-case dispatch).
type Adapter interface {
	// Quote returns the venue's best output amount for swapping amountIn of
	// tokenIn into tokenOut through pool. Returns arberr.ErrNoPool if the
	// pool's address is the zero word, arberr.ErrStale if its reserve
	// product is zero.
	Quote(ctx context.Context, pool domain.Pool, tokenIn, tokenOut domain.TokenRef, amountIn *big.Int) (domain.Quote, error)

	// EncodePath concatenates a multi-hop path the way this venue's router
	// expects it.
	EncodePath(tokens []common.Address, fees []uint32) ([]byte, error)

	// PoolState fetches the current on-chain state for pool.
	PoolState(ctx context.Context, pool domain.Pool) (domain.PoolState, error)

	// PriceImpact computes the quote's deviation from the pre-trade
	// marginal price, in [0, 1].
	PriceImpact(quote domain.Quote, preTradeState domain.PoolState) (*big.Float, error)

	// BuildSwap encodes calldata executing step with the given recipient,
	// deadline, and slippage tolerance (fractional, e.g. 0.005 for 0.5%).
	BuildSwap(step domain.PathStep, recipient common.Address, deadline *big.Int, slippage *big.Float) (CallData, error)
}

// Family identifies which Adapter implementation a venue configuration selects.
type Family string

const (
	FamilyV2     Family = "v2"
	FamilyV3     Family = "v3"
	FamilyStable Family = "stable"
)
