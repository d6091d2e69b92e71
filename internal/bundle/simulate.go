package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/arberr"
	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/transport"
)

// Simulator submits a Draft Bundle to the relay's callBundle-equivalent
// endpoint and parses the response into a SimulationResult (spec §4.7).
type Simulator struct {
	relay *transport.RelayClient
}

func NewSimulator(relay *transport.RelayClient) *Simulator {
	return &Simulator{relay: relay}
}

// relayTxResult is one entry of the relay's per-tx simulation results.
type relayTxResult struct {
	TxHash        string `json:"txHash"`
	GasUsed       uint64 `json:"gasUsed"`
	GasPrice      string `json:"gasPrice"`
	Value         string `json:"value"`
	Error         string `json:"error"`
	Revert        string `json:"revert"`
	FromAddress   string `json:"fromAddress"`
	ToAddress     string `json:"toAddress"`
	SlippageFrac  string `json:"slippageFrac"`
}

// relayStateChange mirrors a single balance delta the relay reports.
type relayStateChange struct {
	Address string `json:"address"`
	Value   string `json:"value"`
}

// relayCallBundleResponse is the shape spec §4.7's "per-tx gas used,
// aggregate effective gas price, MEV value delta, storage/balance diffs"
// takes on the wire (grounded on Flashbots' eth_callBundle response shape,
// the concrete relay API the spec's description is modeled on).
type relayCallBundleResponse struct {
	BundleGasPrice string             `json:"bundleGasPrice"`
	BundleHash     string             `json:"bundleHash"`
	CoinbaseDiff   string             `json:"coinbaseDiff"`
	TotalGasUsed   uint64             `json:"totalGasUsed"`
	StateBlock     string             `json:"stateBlockNumber"`
	Results        []relayTxResult    `json:"results"`
	StateChanges   []relayStateChange `json:"stateChanges"`
}

// Simulate runs bundle against targetBlock, using the block immediately
// preceding it as the state block (spec §4.7).
func (s *Simulator) Simulate(ctx context.Context, b domain.Bundle, targetBlock uint64) (domain.SimulationResult, error) {
	txs := make([]string, len(b.Txs))
	for i, tx := range b.Txs {
		txs[i] = tx.RawHex
	}
	stateBlock := targetBlock - 1

	raw, err := s.relay.SimulateBundle(ctx, transport.SimulateBundleParams{
		Txs:              txs,
		BlockNumber:      fmt.Sprintf("0x%x", targetBlock),
		StateBlockNumber: fmt.Sprintf("0x%x", stateBlock),
	})
	if err != nil {
		return domain.SimulationResult{}, err
	}

	var resp relayCallBundleResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.SimulationResult{}, &arberr.ProtocolError{Op: "simulate-bundle", Err: err}
	}

	return parseSimulationResponse(resp), nil
}

func parseSimulationResponse(resp relayCallBundleResponse) domain.SimulationResult {
	result := domain.SimulationResult{Success: true}

	gasUsed := make([]uint64, 0, len(resp.Results))
	slippage := make([]float64, 0, len(resp.Results))
	for _, r := range resp.Results {
		gasUsed = append(gasUsed, r.GasUsed)
		if r.SlippageFrac != "" {
			var f float64
			fmt.Sscanf(r.SlippageFrac, "%g", &f)
			slippage = append(slippage, f)
		}
		if r.Error != "" || r.Revert != "" {
			result.Success = false
			if result.Error == "" {
				result.Error = r.Error
			}
			if result.RevertReason == "" {
				result.RevertReason = r.Revert
			}
		}
	}
	result.GasUsedPerTx = gasUsed
	result.PerStepSlippage = slippage

	if resp.BundleGasPrice != "" {
		result.EffectiveGasPrice = parseHexOrDecimal(resp.BundleGasPrice)
	}
	if resp.CoinbaseDiff != "" {
		result.RealizedProfit = parseHexOrDecimal(resp.CoinbaseDiff)
	}

	for _, sc := range resp.StateChanges {
		result.StateChanges = append(result.StateChanges, domain.StateChange{
			Address: common.HexToAddress(sc.Address),
			Value:   parseHexOrDecimal(sc.Value),
		})
	}
	return result
}

func parseHexOrDecimal(s string) *big.Int {
	n := new(big.Int)
	if len(s) > 1 && s[0:2] == "0x" {
		n.SetString(s[2:], 16)
		return n
	}
	n.SetString(s, 10)
	return n
}

// ValidationConfig holds the Simulation & Validation component's thresholds
// (spec §4.7).
type ValidationConfig struct {
	MinProfit        *big.Int   // start-token units
	GasOverheadRatio *big.Float // default 1.5
}

// Validate runs the five checks spec §4.7 names against sim, returning the
// name of the first failing check, or "" if every check passes.
func Validate(sim domain.SimulationResult, plan domain.AllocationPlan, cfg ValidationConfig, allowed map[common.Address]bool, perStepTolerance []*big.Float) string {
	if !sim.Success {
		return "swap sub-call failed"
	}

	minProfit := cfg.MinProfit
	if minProfit == nil {
		minProfit = big.NewInt(0)
	}
	if sim.RealizedProfit == nil || sim.RealizedProfit.Cmp(minProfit) < 0 {
		return "realized profit below minimum"
	}

	var expectedGas uint64
	for _, alloc := range plan.Allocations {
		expectedGas += alloc.Path.TotalGas
	}
	var usedGas uint64
	for _, g := range sim.GasUsedPerTx {
		usedGas += g
	}
	ratio := cfg.GasOverheadRatio
	if ratio == nil {
		ratio = big.NewFloat(1.5)
	}
	envelope := new(big.Float).Mul(big.NewFloat(0).SetUint64(expectedGas), ratio)
	envelopeInt, _ := envelope.Int(nil)
	if expectedGas > 0 && usedGas > envelopeInt.Uint64() {
		return "gas used exceeds envelope"
	}

	for _, sc := range sim.StateChanges {
		if !allowed[sc.Address] {
			return "balance change outside allowed addresses"
		}
	}

	for i, observed := range sim.PerStepSlippage {
		if i >= len(perStepTolerance) || perStepTolerance[i] == nil {
			continue
		}
		if big.NewFloat(observed).Cmp(perStepTolerance[i]) > 0 {
			return "per-step slippage exceeds tolerance"
		}
	}

	return ""
}

// AllowedAddresses builds the validator's permitted-balance-change set:
// the engine wallet, every pool the plan's paths touch, and the relay's
// coinbase (spec §4.7, check 3).
func AllowedAddresses(wallet common.Address, plan domain.AllocationPlan, coinbase common.Address) map[common.Address]bool {
	allowed := map[common.Address]bool{wallet: true, coinbase: true}
	for _, alloc := range plan.Allocations {
		for _, step := range alloc.Path.Steps {
			allowed[step.Pool.Addr] = true
		}
	}
	return allowed
}
