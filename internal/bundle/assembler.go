// Package bundle implements the Bundle Assembler, Simulation & Validation,
// and Submission Controller (spec §4.6-4.8): it turns an AllocationPlan into
// an ordered, signed transaction bundle, validates a relay simulation
// against it, and drives the bundle through its state machine.
//
// Grounded on original_source's arbitrage_bot/core/flashbots/bundle.py and
// simulation.py (gas-price optimization, profitability verification,
// simulate-then-validate flow), adapted to the spec's exact numeric rules
// (risk-scaled slippage/priority fee, the five named validation checks, the
// Draft→...→{Included,Expired,Rejected,Failed} FSM) which supersede the
// original's looser heuristics.
package bundle

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/flashloan"
	"github.com/nullmev/arbengine/internal/signer"
	"github.com/nullmev/arbengine/internal/venue"
)

// Backrunner builds an opaque protective backrun transaction sized to the
// bundle's expected profit (spec §4.6: "attach optional backrun protection").
type Backrunner interface {
	Backrun(expectedProfit *big.Int) (venue.CallData, error)
}

// Config holds the Bundle Assembler's gas and slippage knobs (spec §6:
// gas.min_priority_fee, gas.max_priority_fee, gas.max_profit_fraction,
// slippage_tolerance; plus the per-call gas overhead of the flash-loan and
// backrun legs, which the spec's numeric model attributes to BaseGas/
// PerHopGas at the Path Finder but must also be accounted for here).
type Config struct {
	BaseSlippage         *big.Float
	MinPriorityFee       *big.Int
	MaxPriorityFee       *big.Int
	MaxProfitFraction    *big.Float
	MinProfitAbsolute    *big.Int // backrun-attachment threshold, start-token units
	FlashloanGasOverhead uint64
	BackrunGasOverhead   uint64
	SwapDeadline         time.Duration
	ChainID              *big.Int
}

// Assembler builds Bundles from AllocationPlans.
type Assembler struct {
	cfg        Config
	registry   *venue.Registry
	signer     signer.Signer
	flashloan  flashloan.Provider // nil disables the flash-loan legs
	backrunner Backrunner         // nil disables backrun attachment
	now        func() time.Time
}

func NewAssembler(cfg Config, registry *venue.Registry, s signer.Signer, fl flashloan.Provider, br Backrunner) *Assembler {
	if cfg.BaseSlippage == nil {
		cfg.BaseSlippage = big.NewFloat(0.005)
	}
	if cfg.MaxProfitFraction == nil {
		cfg.MaxProfitFraction = big.NewFloat(0.1)
	}
	if cfg.SwapDeadline == 0 {
		cfg.SwapDeadline = 2 * time.Minute
	}
	if cfg.ChainID == nil {
		cfg.ChainID = big.NewInt(1)
	}
	return &Assembler{cfg: cfg, registry: registry, signer: s, flashloan: fl, backrunner: br, now: time.Now}
}

// riskScale maps a RiskLevel to the spec's {1.0, 1.5, 2.0} multiplier,
// applied uniformly to both per-step slippage and priority fee (spec §4.6).
func riskScale(level domain.RiskLevel) *big.Float {
	switch level {
	case domain.RiskMedium:
		return big.NewFloat(1.5)
	case domain.RiskHigh:
		return big.NewFloat(2.0)
	default:
		return big.NewFloat(1.0)
	}
}

func clampFloat(x, lo, hi *big.Float) *big.Float {
	if x.Cmp(lo) < 0 {
		return new(big.Float).Copy(lo)
	}
	if x.Cmp(hi) > 0 {
		return new(big.Float).Copy(hi)
	}
	return x
}

// Assemble builds a Draft Bundle from plan at currentBlock+1, given the
// current RiskAssessment and base fee.
func (a *Assembler) Assemble(plan domain.AllocationPlan, risk domain.RiskAssessment, currentBlock uint64, baseFee *big.Int) (domain.Bundle, error) {
	scale := riskScale(risk.Level)
	slippage := clampFloat(new(big.Float).Mul(a.cfg.BaseSlippage, scale), big.NewFloat(0), big.NewFloat(0.5))

	deadline := big.NewInt(a.now().Add(a.cfg.SwapDeadline).Unix())
	recipient := a.signer.Address()

	var calls []venue.CallData
	var totalGas uint64
	totalAllocated := new(big.Int)
	for _, alloc := range plan.Allocations {
		if alloc.Amount.Sign() == 0 {
			continue
		}
		totalAllocated.Add(totalAllocated, alloc.Amount)
	}

	if a.flashloan != nil && totalAllocated.Sign() > 0 {
		borrow, err := a.flashloan.Borrow(plan.StartToken.Address, totalAllocated)
		if err != nil {
			return domain.Bundle{}, fmt.Errorf("bundle: flashloan borrow: %w", err)
		}
		calls = append(calls, borrow)
		totalGas += a.cfg.FlashloanGasOverhead
	}

	for _, alloc := range plan.Allocations {
		if alloc.Amount.Sign() == 0 {
			continue
		}
		path := alloc.Path
		required := path.Steps[0].AmountIn
		ratio := new(big.Float).Quo(new(big.Float).SetInt(alloc.Amount), new(big.Float).SetInt(required))

		for _, step := range path.Steps {
			adapter, ok := a.registry.Lookup(step.Venue)
			if !ok {
				return domain.Bundle{}, fmt.Errorf("bundle: unknown venue %q in allocated path", step.Venue)
			}
			scaled := scaleStep(step, ratio)
			call, err := adapter.BuildSwap(scaled, recipient, deadline, slippage)
			if err != nil {
				return domain.Bundle{}, fmt.Errorf("bundle: build swap on %q: %w", step.Venue, err)
			}
			calls = append(calls, call)
		}
		totalGas += path.TotalGas
	}

	if a.flashloan != nil && totalAllocated.Sign() > 0 {
		repay, err := a.flashloan.Repay(plan.StartToken.Address, totalAllocated, big.NewInt(0))
		if err != nil {
			return domain.Bundle{}, fmt.Errorf("bundle: flashloan repay: %w", err)
		}
		calls = append(calls, repay)
		totalGas += a.cfg.FlashloanGasOverhead
	}

	expectedProfit, _ := plan.ExpectedProfit.Int(nil)

	if a.attachBackrun(risk, expectedProfit) && a.backrunner != nil {
		backrun, err := a.backrunner.Backrun(expectedProfit)
		if err != nil {
			return domain.Bundle{}, fmt.Errorf("bundle: build backrun: %w", err)
		}
		calls = append(calls, backrun)
		totalGas += a.cfg.BackrunGasOverhead
	}

	priorityFee := a.priorityFee(scale)
	maxFee := a.maxFee(baseFee, priorityFee, totalGas, expectedProfit)

	txs, err := a.signTxs(calls, maxFee, priorityFee, totalGas)
	if err != nil {
		return domain.Bundle{}, err
	}

	bundleCost := new(big.Int).Mul(maxFee, new(big.Int).SetUint64(totalGas))
	target := currentBlock + 1

	return domain.Bundle{
		Txs:            txs,
		TargetBlock:    target,
		Gas:            domain.GasProfile{MaxFee: maxFee, PriorityFee: priorityFee, GasLimitMultiplier: big.NewFloat(1.0)},
		GasEstimate:    totalGas,
		BundleCost:     bundleCost,
		ExpectedProfit: expectedProfit,
		State:          domain.BundleDraft,
		FirstTarget:    target,
	}, nil
}

// RecomputeGas re-derives the priority fee and max fee against the current
// risk level and base fee (spec §4.8: a retried resubmission "re-optimizes
// gas against the new base fee" rather than resending the Draft's original
// fee caps).
func (a *Assembler) RecomputeGas(risk domain.RiskAssessment, baseFee *big.Int, gasEstimate uint64, expectedProfit *big.Int) domain.GasProfile {
	scale := riskScale(risk.Level)
	priorityFee := a.priorityFee(scale)
	maxFee := a.maxFee(baseFee, priorityFee, gasEstimate, expectedProfit)
	return domain.GasProfile{MaxFee: maxFee, PriorityFee: priorityFee, GasLimitMultiplier: big.NewFloat(1.0)}
}

// Reprice re-signs every transaction already in b under a new gas profile,
// preserving each tx's nonce, recipient, value, and calldata - used by the
// Submission Controller when a retry's RecomputeGas produces fee caps that
// differ from the ones the bundle was last signed with.
func (a *Assembler) Reprice(b domain.Bundle, gas domain.GasProfile) (domain.Bundle, error) {
	repriced := make([]domain.SignedTx, 0, len(b.Txs))
	var totalGas uint64
	for _, signed := range b.Txs {
		var tx types.Transaction
		if err := tx.UnmarshalBinary(common.FromHex(signed.RawHex)); err != nil {
			return domain.Bundle{}, fmt.Errorf("bundle: decode tx for reprice: %w", err)
		}
		rebuilt := types.NewTx(&types.DynamicFeeTx{
			ChainID:   a.cfg.ChainID,
			Nonce:     tx.Nonce(),
			GasTipCap: gas.PriorityFee,
			GasFeeCap: gas.MaxFee,
			Gas:       tx.Gas(),
			To:        tx.To(),
			Value:     tx.Value(),
			Data:      tx.Data(),
		})
		resigned, err := a.signer.SignTx(rebuilt, a.cfg.ChainID)
		if err != nil {
			return domain.Bundle{}, fmt.Errorf("bundle: re-sign repriced tx: %w", err)
		}
		raw, err := resigned.MarshalBinary()
		if err != nil {
			return domain.Bundle{}, fmt.Errorf("bundle: encode repriced tx: %w", err)
		}
		repriced = append(repriced, domain.SignedTx{RawHex: "0x" + common.Bytes2Hex(raw), Hash: resigned.Hash()})
		totalGas += tx.Gas()
	}
	b.Txs = repriced
	b.Gas = gas
	b.GasEstimate = totalGas
	b.BundleCost = new(big.Int).Mul(gas.MaxFee, new(big.Int).SetUint64(totalGas))
	return b, nil
}

// attachBackrun implements spec §4.6's attachment rule: estimated
// transaction value at least 10x the configured minimum absolute profit, or
// any non-low risk level.
func (a *Assembler) attachBackrun(risk domain.RiskAssessment, expectedProfit *big.Int) bool {
	if risk.Level != domain.RiskLow {
		return true
	}
	if a.cfg.MinProfitAbsolute == nil || a.cfg.MinProfitAbsolute.Sign() == 0 {
		return false
	}
	threshold := new(big.Int).Mul(a.cfg.MinProfitAbsolute, big.NewInt(10))
	return expectedProfit.Cmp(threshold) >= 0
}

// priorityFee computes clamp(min_priority + risk_scale*1e9, cfg.min, cfg.max)
// (spec §4.6; 1e9 wei = 1 gwei per whole risk_scale unit).
func (a *Assembler) priorityFee(scale *big.Float) *big.Int {
	scaled := new(big.Float).Mul(scale, big.NewFloat(1e9))
	sum := new(big.Float).Add(new(big.Float).SetInt(a.cfg.MinPriorityFee), scaled)
	sumInt, _ := sum.Int(nil)
	if a.cfg.MinPriorityFee != nil && sumInt.Cmp(a.cfg.MinPriorityFee) < 0 {
		sumInt = a.cfg.MinPriorityFee
	}
	if a.cfg.MaxPriorityFee != nil && sumInt.Cmp(a.cfg.MaxPriorityFee) > 0 {
		sumInt = a.cfg.MaxPriorityFee
	}
	return sumInt
}

// maxFee computes base_fee*1.1 + priority_fee, then clamps so that
// max_fee * gas_estimate <= max_profit_fraction * expected_profit (spec
// §4.6) - but never below base_fee*1.1, per the DATA MODEL invariant that
// max_fee must always clear the previous block's base fee. A profit budget
// too small to cover that floor means the bundle trades at the floor
// anyway rather than signing an under-floor fee that the network would
// reject from the next block.
func (a *Assembler) maxFee(baseFee, priorityFee *big.Int, gasEstimate uint64, expectedProfit *big.Int) *big.Int {
	base := new(big.Float).Mul(new(big.Float).SetInt(baseFee), big.NewFloat(1.1))
	fee := new(big.Float).Add(base, new(big.Float).SetInt(priorityFee))

	if gasEstimate == 0 {
		feeInt, _ := fee.Int(nil)
		return feeInt
	}

	budget := new(big.Float).Mul(a.cfg.MaxProfitFraction, new(big.Float).SetInt(expectedProfit))
	capFee := new(big.Float).Quo(budget, new(big.Float).SetUint64(gasEstimate))
	if capFee.Cmp(base) < 0 {
		capFee = base
	}
	if fee.Cmp(capFee) > 0 {
		fee = capFee
	}
	feeInt, _ := fee.Int(nil)
	return feeInt
}

// signTxs wraps each call as a DynamicFeeTx and signs it, splitting the
// bundle's aggregate gas estimate evenly across calls.
func (a *Assembler) signTxs(calls []venue.CallData, maxFee, priorityFee *big.Int, totalGas uint64) ([]domain.SignedTx, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	perCallGas := totalGas / uint64(len(calls))
	if perCallGas == 0 {
		perCallGas = 21000
	}

	txs := make([]domain.SignedTx, 0, len(calls))
	for _, call := range calls {
		to := call.To
		tx := types.NewTx(&types.DynamicFeeTx{
			ChainID:   a.cfg.ChainID,
			Nonce:     a.signer.NextNonce(),
			GasTipCap: priorityFee,
			GasFeeCap: maxFee,
			Gas:       perCallGas,
			To:        &to,
			Value:     big.NewInt(0),
			Data:      call.Data,
		})
		signed, err := a.signer.SignTx(tx, a.cfg.ChainID)
		if err != nil {
			return nil, fmt.Errorf("bundle: sign tx: %w", err)
		}
		raw, err := signed.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("bundle: encode signed tx: %w", err)
		}
		txs = append(txs, domain.SignedTx{RawHex: "0x" + common.Bytes2Hex(raw), Hash: signed.Hash()})
	}
	return txs, nil
}

// scaleStep rescales a path step's amounts by ratio (the allocated capital
// relative to the path's originally quoted size), so the built swap moves
// the capital actually assigned to it rather than the path's nominal quote
// size.
func scaleStep(step domain.PathStep, ratio *big.Float) domain.PathStep {
	in := new(big.Float).Mul(new(big.Float).SetInt(step.AmountIn), ratio)
	out := new(big.Float).Mul(new(big.Float).SetInt(step.AmountOut), ratio)
	inInt, _ := in.Int(nil)
	outInt, _ := out.Int(nil)
	scaled := step
	scaled.AmountIn = inInt
	scaled.AmountOut = outInt
	return scaled
}
