// Package domain holds the data model shared across the opportunity
// pipeline: tokens, venues, pools, quotes, paths, allocations, bundles and
// the risk/gas types that travel between components.
package domain

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidDecimals is returned by NewTokenRef for an out-of-range decimals value.
var ErrInvalidDecimals = errors.New("domain: invalid token decimals")

// PoolType identifies the invariant family a Pool implements.
type PoolType string

const (
	PoolTypeV2     PoolType = "V2"
	PoolTypeV3     PoolType = "V3"
	PoolTypeStable PoolType = "Stable"
)

// TokenRef is an immutable, checksummed token reference.
type TokenRef struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

// NewTokenRef normalizes addr to its checksummed form and validates decimals.
func NewTokenRef(addr common.Address, decimals uint8) (TokenRef, error) {
	if decimals > 36 {
		return TokenRef{}, ErrInvalidDecimals
	}
	return TokenRef{Address: common.HexToAddress(addr.Hex()), Decimals: decimals}, nil
}

// VenueID is the stable string tag identifying a configured venue, e.g. "aerodrome-v2".
type VenueID string

// Pool is a discovered liquidity pool on a given venue.
//
// Params carries venue-specific opaque data (e.g. a V3 fee tier or a stable
// pool's amplification coefficient) that only the owning adapter interprets.
type Pool struct {
	Venue  VenueID
	Addr   common.Address
	Tokens []TokenRef
	Fee    uint32 // fee in hundredths of a bip (1e-6), e.g. 3000 = 0.3%
	Type   PoolType
	Params map[string]any
}

// PoolState is the as-of-block snapshot of a pool's pricing state.
//
// Exactly one of the reserve/price representations is populated depending on
// Pool.Type; callers must check Pool.Type before reading fields.
type PoolState struct {
	BlockHeight uint64

	// V2
	Reserve0 *big.Int
	Reserve1 *big.Int

	// V3
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32

	// Stable
	Balances []*big.Int
	AmpCoeff *big.Int
}

// Quote is the result of asking a single pool for a single-direction swap price.
type Quote struct {
	Pool        Pool
	TokenIn     TokenRef
	TokenOut    TokenRef
	AmountIn    *big.Int
	AmountOut   *big.Int
	PriceImpact *big.Float // in [0, 1]
	GasEstimate uint64
	BlockHeight uint64
}

// PathStep is one hop of a candidate arbitrage path.
type PathStep struct {
	Venue     VenueID
	Pool      Pool
	TokenIn   TokenRef
	TokenOut  TokenRef
	AmountIn  *big.Int
	AmountOut *big.Int
	Fee       uint32
}

// ArbitragePath is a closed chain of steps: start token == end token.
type ArbitragePath struct {
	Steps        []PathStep
	TotalGas     uint64
	GrossProfit  *big.Int // amount_end - amount_start, start-token units
	NetProfit    *big.Int // GrossProfit - gas*gasPrice, start-token units
	ProfitMargin *big.Float
}

// StartToken returns the token the path begins (and must end) with.
func (p ArbitragePath) StartToken() TokenRef {
	return p.Steps[0].TokenIn
}

// EndToken returns the token the path's final step produces.
func (p ArbitragePath) EndToken() TokenRef {
	return p.Steps[len(p.Steps)-1].TokenOut
}

// PathAllocation is one path's share of a capital allocation plan.
type PathAllocation struct {
	Path     ArbitragePath
	Amount   *big.Int
}

// AllocationPlan is the optimizer's output: how to split capital across paths.
type AllocationPlan struct {
	StartToken      TokenRef
	Allocations     []PathAllocation
	ExpectedProfit  *big.Float
}

// GasProfile is the fee parameters attached to a bundle.
type GasProfile struct {
	MaxFee              *big.Int
	PriorityFee         *big.Int
	GasLimitMultiplier  *big.Float
}

// RiskLevel is the discrete output of the Risk Analyzer.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskAssessment is a compact, testable score of the inclusion environment.
type RiskAssessment struct {
	Level        RiskLevel
	GasPrice     *big.Int
	AvgGasPrice  *big.Int
	GasVolatility *big.Float
	BaseFee      *big.Int
	Factors      []string
	AsOf         time.Time
}

// BundleState is a node of the Bundle FSM (spec §4.8).
type BundleState string

const (
	BundleDraft      BundleState = "Draft"
	BundleSimulating BundleState = "Simulating"
	BundleReady      BundleState = "Ready"
	BundleSubmitting BundleState = "Submitting"
	BundlePending    BundleState = "Pending"
	BundleIncluded   BundleState = "Included"
	BundleExpired    BundleState = "Expired"
	BundleRejected   BundleState = "Rejected"
	BundleFailed     BundleState = "Failed"
)

// SignedTx is the minimal shape the bundle cares about for a signed transaction.
type SignedTx struct {
	RawHex string
	Hash   common.Hash
}

// Bundle is an ordered, atomic group of signed transactions targeting one block.
type Bundle struct {
	Txs            []SignedTx
	TargetBlock    uint64
	Gas            GasProfile
	GasEstimate    uint64 // aggregate gas estimate the current Gas profile was priced against
	BundleCost     *big.Int
	ExpectedProfit *big.Int
	State          BundleState
	FirstTarget    uint64 // target₀, for max_blocks_ahead bookkeeping
}

// StateChange is one observed balance/storage delta from a simulation.
type StateChange struct {
	Address common.Address
	Value   *big.Int
}

// SimulationResult is the outcome of simulating a Bundle against a target block.
type SimulationResult struct {
	Success           bool
	Error             string
	RevertReason      string
	GasUsedPerTx      []uint64
	EffectiveGasPrice *big.Int
	RealizedProfit    *big.Int
	StateChanges      []StateChange
	PerStepSlippage   []float64 // observed slippage per swap step, fractional
}

// CycleOutcomeKind enumerates the per-cycle outcome records (spec §7).
type CycleOutcomeKind string

const (
	OutcomeOK               CycleOutcomeKind = "ok"
	OutcomeNoOpportunity    CycleOutcomeKind = "no_opportunity"
	OutcomeValidationFailed CycleOutcomeKind = "validation_failed"
	OutcomeExpired          CycleOutcomeKind = "expired"
	OutcomeTransportAborted CycleOutcomeKind = "transport_aborted"
)

// CycleOutcome is the single structured record each engine cycle emits.
type CycleOutcome struct {
	Kind           CycleOutcomeKind
	BundleHash     common.Hash
	RealizedProfit *big.Int
	FailingCheck   string
	At             time.Time
}
