package bundle

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/arberr"
	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/transport"
)

// ControllerConfig holds the Submission Controller's retry policy (spec
// §4.8: max_blocks_ahead, the base-fee re-simulation trigger).
type ControllerConfig struct {
	MaxBlocksAhead         uint64
	BaseFeeChangeThreshold *big.Float // default 0.10
	Validation             ValidationConfig
}

// Controller drives a Bundle through its FSM: Draft -> Simulating -> Ready
// -> Submitting -> Pending -> {Included, Expired, Rejected, Failed} (spec
// §4.8), grounded on original_source's submission/retry loop in
// arbitrage_bot/core/flashbots/bundle.py, reshaped to the spec's exact
// state names and transition conditions.
type Controller struct {
	simulator *Simulator
	relay     *transport.RelayClient
	assembler *Assembler
	cfg       ControllerConfig
}

func NewController(simulator *Simulator, relay *transport.RelayClient, assembler *Assembler, cfg ControllerConfig) *Controller {
	if cfg.BaseFeeChangeThreshold == nil {
		cfg.BaseFeeChangeThreshold = big.NewFloat(0.10)
	}
	return &Controller{simulator: simulator, relay: relay, assembler: assembler, cfg: cfg}
}

// Submit drives a freshly-assembled Draft bundle through Simulating,
// Ready/Failed, Submitting, and Pending/Rejected.
func (c *Controller) Submit(ctx context.Context, draft domain.Bundle, plan domain.AllocationPlan, allowed map[common.Address]bool, perStepTolerance []*big.Float) (domain.Bundle, error) {
	b := draft
	b.State = domain.BundleSimulating

	sim, err := c.simulator.Simulate(ctx, b, b.TargetBlock)
	if err != nil {
		if isPermanent(err) {
			b.State = domain.BundleRejected
		}
		return b, err
	}

	if failing := Validate(sim, plan, c.cfg.Validation, allowed, perStepTolerance); failing != "" {
		b.State = domain.BundleFailed
		return b, &arberr.ValidationError{Check: failing, Err: fmt.Errorf("bundle failed validation")}
	}
	b.State = domain.BundleReady

	return c.send(ctx, b)
}

// Advance drives a Pending bundle one polling tick forward (spec §4.8's
// retry policy): included reports Included; otherwise, if the
// max_blocks_ahead window remains, it re-simulates only when the base fee
// moved by more than the configured threshold or the risk level changed,
// then resubmits at currentBlock+1; once the window is exhausted it
// reports Expired. A retry first re-optimizes gas against the new base fee
// (spec §4.8) via the Assembler, re-signing every tx in the bundle before
// re-simulating and resubmitting it.
func (c *Controller) Advance(
	ctx context.Context,
	b domain.Bundle,
	included bool,
	currentBlock uint64,
	baseFee, lastBaseFee *big.Int,
	risk domain.RiskAssessment,
	riskChanged bool,
	plan domain.AllocationPlan,
	allowed map[common.Address]bool,
	perStepTolerance []*big.Float,
) (domain.Bundle, error) {
	if included {
		b.State = domain.BundleIncluded
		return b, nil
	}
	if currentBlock-b.FirstTarget >= c.cfg.MaxBlocksAhead {
		b.State = domain.BundleExpired
		return b, nil
	}

	b.TargetBlock = currentBlock + 1

	if riskChanged || baseFeeMoved(baseFee, lastBaseFee, c.cfg.BaseFeeChangeThreshold) {
		if c.assembler != nil {
			gas := c.assembler.RecomputeGas(risk, baseFee, b.GasEstimate, b.ExpectedProfit)
			repriced, err := c.assembler.Reprice(b, gas)
			if err != nil {
				return b, fmt.Errorf("bundle: reprice before retry: %w", err)
			}
			b = repriced
		}

		b.State = domain.BundleSimulating
		sim, err := c.simulator.Simulate(ctx, b, b.TargetBlock)
		if err != nil {
			if isPermanent(err) {
				b.State = domain.BundleRejected
			}
			return b, err
		}
		if failing := Validate(sim, plan, c.cfg.Validation, allowed, perStepTolerance); failing != "" {
			b.State = domain.BundleFailed
			return b, &arberr.ValidationError{Check: failing, Err: fmt.Errorf("bundle failed validation")}
		}
	}
	b.State = domain.BundleReady

	return c.send(ctx, b)
}

func (c *Controller) send(ctx context.Context, b domain.Bundle) (domain.Bundle, error) {
	b.State = domain.BundleSubmitting
	_, err := c.relay.SendBundle(ctx, transport.SendBundleParams{
		Txs:         rawTxs(b),
		BlockNumber: fmt.Sprintf("0x%x", b.TargetBlock),
	})
	if err != nil {
		if isPermanent(err) {
			b.State = domain.BundleRejected
		}
		return b, err
	}
	b.State = domain.BundlePending
	return b, nil
}

func rawTxs(b domain.Bundle) []string {
	out := make([]string, len(b.Txs))
	for i, tx := range b.Txs {
		out[i] = tx.RawHex
	}
	return out
}

// baseFeeMoved reports whether baseFee differs from lastBaseFee by more
// than threshold, proportionally (spec §4.8: "base fee changed by > 10%").
func baseFeeMoved(baseFee, lastBaseFee *big.Int, threshold *big.Float) bool {
	if lastBaseFee == nil || lastBaseFee.Sign() == 0 || baseFee == nil {
		return true
	}
	delta := new(big.Int).Sub(baseFee, lastBaseFee)
	delta.Abs(delta)
	ratio := new(big.Float).Quo(new(big.Float).SetInt(delta), new(big.Float).SetInt(lastBaseFee))
	return ratio.Cmp(threshold) > 0
}

// isPermanent classifies a relay error as permanent (spec §4.8: "auth,
// malformed, unknown method") vs. transiently retryable.
func isPermanent(err error) bool {
	var protoErr *arberr.ProtocolError
	return errors.As(err, &protoErr)
}
