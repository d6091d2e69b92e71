package bundle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/nullmev/arbengine/internal/domain"
)

func TestParseSimulationResponseSuccess(t *testing.T) {
	resp := relayCallBundleResponse{
		BundleGasPrice: "0x3b9aca00",
		CoinbaseDiff:   "0x2710",
		Results: []relayTxResult{
			{GasUsed: 90_000},
			{GasUsed: 60_000},
		},
		StateChanges: []relayStateChange{
			{Address: "0x000000000000000000000000000000000000aa", Value: "0x64"},
		},
	}

	result := parseSimulationResponse(resp)
	assert.True(t, result.Success)
	assert.Equal(t, []uint64{90_000, 60_000}, result.GasUsedPerTx)
	assert.Equal(t, big.NewInt(10_000), result.RealizedProfit)
	assert.Equal(t, big.NewInt(1_000_000_000), result.EffectiveGasPrice)
	assert.Len(t, result.StateChanges, 1)
}

func TestParseSimulationResponseMarksFailureOnRevert(t *testing.T) {
	resp := relayCallBundleResponse{
		Results: []relayTxResult{
			{GasUsed: 50_000},
			{GasUsed: 0, Revert: "execution reverted: K"},
		},
	}

	result := parseSimulationResponse(resp)
	assert.False(t, result.Success)
	assert.Equal(t, "execution reverted: K", result.RevertReason)
}

func testValidationPlan() (domain.AllocationPlan, common.Address) {
	pool := common.HexToAddress("0xpool")
	path := domain.ArbitragePath{
		Steps:    []domain.PathStep{{Pool: domain.Pool{Addr: pool}}},
		TotalGas: 100_000,
	}
	plan := domain.AllocationPlan{
		Allocations: []domain.PathAllocation{{Path: path, Amount: big.NewInt(1)}},
	}
	return plan, pool
}

func TestValidatePassesWithinAllThresholds(t *testing.T) {
	plan, pool := testValidationPlan()
	wallet := common.HexToAddress("0xwallet")
	coinbase := common.HexToAddress("0xcb")
	allowed := AllowedAddresses(wallet, plan, coinbase)

	sim := domain.SimulationResult{
		Success:        true,
		RealizedProfit: big.NewInt(5_000),
		GasUsedPerTx:   []uint64{120_000},
		StateChanges: []domain.StateChange{
			{Address: pool, Value: big.NewInt(-1)},
			{Address: wallet, Value: big.NewInt(1)},
		},
		PerStepSlippage: []float64{0.004},
	}
	cfg := ValidationConfig{MinProfit: big.NewInt(1_000)}
	tolerance := []*big.Float{big.NewFloat(0.005)}

	failing := Validate(sim, plan, cfg, allowed, tolerance)
	assert.Empty(t, failing)
}

func TestValidateRejectsProfitBelowMinimum(t *testing.T) {
	plan, _ := testValidationPlan()
	sim := domain.SimulationResult{Success: true, RealizedProfit: big.NewInt(100)}
	cfg := ValidationConfig{MinProfit: big.NewInt(1_000)}

	failing := Validate(sim, plan, cfg, map[common.Address]bool{}, nil)
	assert.Equal(t, "realized profit below minimum", failing)
}

func TestValidateRejectsGasOverEnvelope(t *testing.T) {
	plan, pool := testValidationPlan()
	allowed := map[common.Address]bool{pool: true}
	sim := domain.SimulationResult{
		Success:        true,
		RealizedProfit: big.NewInt(5_000),
		GasUsedPerTx:   []uint64{200_000}, // > 1.5 * 100_000
	}
	cfg := ValidationConfig{MinProfit: big.NewInt(1_000)}

	failing := Validate(sim, plan, cfg, allowed, nil)
	assert.Equal(t, "gas used exceeds envelope", failing)
}

func TestValidateRejectsUnexpectedBalanceChange(t *testing.T) {
	plan, pool := testValidationPlan()
	allowed := map[common.Address]bool{pool: true}
	stranger := common.HexToAddress("0xbad")
	sim := domain.SimulationResult{
		Success:        true,
		RealizedProfit: big.NewInt(5_000),
		GasUsedPerTx:   []uint64{100_000},
		StateChanges:   []domain.StateChange{{Address: stranger, Value: big.NewInt(1)}},
	}
	cfg := ValidationConfig{MinProfit: big.NewInt(1_000)}

	failing := Validate(sim, plan, cfg, allowed, nil)
	assert.Equal(t, "balance change outside allowed addresses", failing)
}

func TestValidateRejectsSlippageOverTolerance(t *testing.T) {
	plan, pool := testValidationPlan()
	allowed := map[common.Address]bool{pool: true}
	sim := domain.SimulationResult{
		Success:         true,
		RealizedProfit:  big.NewInt(5_000),
		GasUsedPerTx:    []uint64{100_000},
		PerStepSlippage: []float64{0.02},
	}
	cfg := ValidationConfig{MinProfit: big.NewInt(1_000)}
	tolerance := []*big.Float{big.NewFloat(0.01)}

	failing := Validate(sim, plan, cfg, allowed, tolerance)
	assert.Equal(t, "per-step slippage exceeds tolerance", failing)
}

func TestValidateRejectsFailedSimulation(t *testing.T) {
	plan, _ := testValidationPlan()
	sim := domain.SimulationResult{Success: false, RevertReason: "K"}
	cfg := ValidationConfig{MinProfit: big.NewInt(0)}

	failing := Validate(sim, plan, cfg, map[common.Address]bool{}, nil)
	assert.Equal(t, "swap sub-call failed", failing)
}
