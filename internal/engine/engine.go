// Package engine wires the opportunity pipeline's modules into the single
// cycle loop spec §5's data flow describes: Pool events -> Quoting Engine
// -> Path Finder -> Multi-Path Optimizer -> Bundle Assembler -> Simulator
// -> Submission Controller -> Relay, with the Risk Analyzer feeding both
// the Assembler and the Submission Controller.
//
// Grounded on the teacher's RunStrategy1 contract
// (specs/001-liquidity-repositioning/contracts/strategy_api.go): a
// context-cancellable loop that reports structured events on a channel and
// halts on a run of consecutive errors rather than panicking or looping
// forever, adapted from that file's StrategyReport/CircuitBreaker shape to
// this engine's own domain.CycleOutcome and bundle lifecycle.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/nullmev/arbengine/internal/bundle"
	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/optimizer"
	"github.com/nullmev/arbengine/internal/pathfinder"
	"github.com/nullmev/arbengine/internal/recorder"
	"github.com/nullmev/arbengine/internal/risk"
	"github.com/nullmev/arbengine/internal/venue"
)

// ChainReader is the subset of *ethclient.Client the cycle loop needs: the
// current chain head, the network's suggested gas price, and inclusion
// status for a submitted bundle's lead transaction.
type ChainReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Config holds the values the cycle loop needs that no single collaborator
// already owns.
type Config struct {
	StartToken           domain.TokenRef
	Capital              *big.Int
	Wallet               common.Address
	Coinbase             common.Address // block builder's fee recipient, for Validate's allowed-address set
	CycleInterval        time.Duration  // also used as the inclusion-poll interval while a bundle is Pending
	SlippageTolerance    *big.Float
	MaxConsecutiveErrors int
}

// Engine owns one instance of every pipeline stage and drives them through
// repeated cycles.
type Engine struct {
	chain      ChainReader
	registry   *venue.Registry
	finder     *pathfinder.Finder
	optimizer  *optimizer.Optimizer
	riskAn     *risk.Analyzer
	assembler  *bundle.Assembler
	controller *bundle.Controller
	store      recorder.Store // nil disables persistence
	cfg        Config
}

func NewEngine(
	chain ChainReader,
	registry *venue.Registry,
	finder *pathfinder.Finder,
	opt *optimizer.Optimizer,
	riskAn *risk.Analyzer,
	assembler *bundle.Assembler,
	controller *bundle.Controller,
	store recorder.Store,
	cfg Config,
) *Engine {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 12 * time.Second
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = 5
	}
	if cfg.SlippageTolerance == nil {
		cfg.SlippageTolerance = big.NewFloat(0.005)
	}
	return &Engine{
		chain:      chain,
		registry:   registry,
		finder:     finder,
		optimizer:  opt,
		riskAn:     riskAn,
		assembler:  assembler,
		controller: controller,
		store:      store,
		cfg:        cfg,
	}
}

// Run drives the cycle loop until ctx is cancelled or consecutive cycle
// errors reach Config.MaxConsecutiveErrors, sending exactly one
// CycleOutcome per cycle on report. Pass a buffered channel if the consumer
// may fall behind; Run blocks on a full channel only until ctx is done.
func (e *Engine) Run(ctx context.Context, report chan<- domain.CycleOutcome) error {
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		outcome, err := e.cycle(ctx)
		if err != nil {
			consecutiveErrors++
			outcome = domain.CycleOutcome{
				Kind:         domain.OutcomeTransportAborted,
				FailingCheck: err.Error(),
				At:           time.Now(),
			}
			e.emit(ctx, report, outcome)
			if consecutiveErrors >= e.cfg.MaxConsecutiveErrors {
				return fmt.Errorf("engine: halted after %d consecutive errors: %w", consecutiveErrors, err)
			}
			continue
		}
		consecutiveErrors = 0
		e.emit(ctx, report, outcome)
	}
}

func (e *Engine) emit(ctx context.Context, report chan<- domain.CycleOutcome, outcome domain.CycleOutcome) {
	select {
	case report <- outcome:
	case <-ctx.Done():
	}
}

// cycle runs exactly one pass of the opportunity pipeline: observe the
// chain head, assess risk, search for paths, allocate capital, assemble and
// submit a bundle, then drive it to a terminal state.
func (e *Engine) cycle(ctx context.Context) (domain.CycleOutcome, error) {
	now := time.Now()

	header, err := e.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.CycleOutcome{}, fmt.Errorf("fetch chain head: %w", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	e.riskAn.Observe(risk.BlockSample{Height: header.Number.Uint64(), BaseFee: baseFee})

	gasPrice, err := e.chain.SuggestGasPrice(ctx)
	if err != nil {
		return domain.CycleOutcome{}, fmt.Errorf("suggest gas price: %w", err)
	}
	riskAssessment := e.riskAn.Assess(gasPrice, now)
	e.recordRiskSnapshot(now, riskAssessment)

	paths := e.finder.Find(ctx, e.cfg.Capital, new(big.Float).SetInt(gasPrice))
	if len(paths) == 0 {
		return domain.CycleOutcome{Kind: domain.OutcomeNoOpportunity, At: now}, nil
	}

	plan, err := e.optimizer.Allocate(paths, e.cfg.Capital, e.cfg.StartToken)
	if err != nil {
		return domain.CycleOutcome{Kind: domain.OutcomeNoOpportunity, FailingCheck: err.Error(), At: now}, nil
	}

	draft, err := e.assembler.Assemble(plan, riskAssessment, header.Number.Uint64(), baseFee)
	if err != nil {
		return domain.CycleOutcome{Kind: domain.OutcomeValidationFailed, FailingCheck: err.Error(), At: now}, nil
	}

	allowed := bundle.AllowedAddresses(e.cfg.Wallet, plan, e.cfg.Coinbase)
	tolerance := toleranceSlice(e.cfg.SlippageTolerance, len(plan.Allocations))

	submitted, err := e.controller.Submit(ctx, draft, plan, allowed, tolerance)
	if err != nil && submitted.State != domain.BundleRejected && submitted.State != domain.BundleFailed {
		return domain.CycleOutcome{}, fmt.Errorf("submit bundle: %w", err)
	}

	final := e.drive(ctx, submitted, plan, allowed, tolerance, baseFee, riskAssessment.Level)
	outcome := outcomeFor(final)
	e.recordExecution(now, outcome, final)
	return outcome, nil
}

// drive polls the chain for inclusion of a Pending bundle, calling
// Controller.Advance once per CycleInterval tick until the bundle reaches a
// terminal state or ctx is cancelled.
func (e *Engine) drive(
	ctx context.Context,
	b domain.Bundle,
	plan domain.AllocationPlan,
	allowed map[common.Address]bool,
	tolerance []*big.Float,
	lastBaseFee *big.Int,
	lastRiskLevel domain.RiskLevel,
) domain.Bundle {
	for b.State == domain.BundlePending || b.State == domain.BundleSubmitting {
		select {
		case <-ctx.Done():
			return b
		case <-time.After(e.cfg.CycleInterval):
		}

		header, err := e.chain.HeaderByNumber(ctx, nil)
		if err != nil {
			continue
		}
		baseFee := header.BaseFee
		if baseFee == nil {
			baseFee = big.NewInt(0)
		}

		included := e.isIncluded(ctx, b)
		gasPrice, err := e.chain.SuggestGasPrice(ctx)
		riskChanged := false
		assessment := domain.RiskAssessment{Level: lastRiskLevel}
		if err == nil {
			assessment = e.riskAn.Assess(gasPrice, time.Now())
			riskChanged = assessment.Level != lastRiskLevel
			lastRiskLevel = assessment.Level
		}

		b, err = e.controller.Advance(ctx, b, included, header.Number.Uint64(), baseFee, lastBaseFee, assessment, riskChanged, plan, allowed, tolerance)
		lastBaseFee = baseFee
		if err != nil && b.State != domain.BundleRejected && b.State != domain.BundleFailed {
			continue
		}
	}
	return b
}

// isIncluded reports whether the bundle's lead transaction has a mined
// receipt.
func (e *Engine) isIncluded(ctx context.Context, b domain.Bundle) bool {
	if len(b.Txs) == 0 {
		return false
	}
	receipt, err := e.chain.TransactionReceipt(ctx, b.Txs[0].Hash)
	return err == nil && receipt != nil
}

func (e *Engine) recordRiskSnapshot(at time.Time, r domain.RiskAssessment) {
	if e.store == nil {
		return
	}
	volatility, _ := r.GasVolatility.Float64()
	_ = e.store.RecordRiskSnapshot(recorder.RiskSnapshotRecord{
		Timestamp:     at,
		Level:         r.Level,
		GasPrice:      r.GasPrice,
		AvgGasPrice:   r.AvgGasPrice,
		GasVolatility: volatility,
		Factors:       r.Factors,
	})
}

func (e *Engine) recordExecution(at time.Time, outcome domain.CycleOutcome, b domain.Bundle) {
	if e.store == nil {
		return
	}
	_ = e.store.RecordExecution(recorder.ExecutionRecord{
		Timestamp:        at,
		BundleHash:       outcome.BundleHash,
		TargetBlock:      b.TargetBlock,
		RealizedProfit:   b.ExpectedProfit,
		ValidationResult: outcome.FailingCheck,
		FinalState:       b.State,
	})
}

func toleranceSlice(tolerance *big.Float, n int) []*big.Float {
	out := make([]*big.Float, n)
	for i := range out {
		out[i] = tolerance
	}
	return out
}

// outcomeFor maps a bundle's terminal FSM state to the per-cycle record
// spec §7 names.
func outcomeFor(b domain.Bundle) domain.CycleOutcome {
	var hash common.Hash
	if len(b.Txs) > 0 {
		hash = b.Txs[0].Hash
	}

	kind := domain.OutcomeOK
	switch b.State {
	case domain.BundleFailed, domain.BundleRejected:
		kind = domain.OutcomeValidationFailed
	case domain.BundleExpired:
		kind = domain.OutcomeExpired
	}

	return domain.CycleOutcome{
		Kind:           kind,
		BundleHash:     hash,
		RealizedProfit: b.ExpectedProfit,
		At:             time.Now(),
	}
}
