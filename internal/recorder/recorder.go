// Package recorder implements persistence (spec §4.13): an always-on
// append-only JSON file store for executed-bundle and risk-snapshot
// records, and an optional best-effort GORM/MySQL mirror for operator
// querying, composed through a fanout that writes to both.
package recorder

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/domain"
)

// ExecutionRecord is one executed-bundle entry (spec §6: "timestamp,
// bundle hash, target block, realized profit, validation outcome").
type ExecutionRecord struct {
	Timestamp        time.Time      `json:"timestamp"`
	BundleHash       common.Hash    `json:"bundle_hash"`
	TargetBlock      uint64         `json:"target_block"`
	RealizedProfit   *big.Int       `json:"realized_profit"`
	ValidationResult string         `json:"validation_result"` // "" on pass
	FinalState       domain.BundleState `json:"final_state"`
}

// RiskSnapshotRecord is one Risk Analyzer observation, recorded alongside
// executions in a separate rolling file (spec §6).
type RiskSnapshotRecord struct {
	Timestamp     time.Time        `json:"timestamp"`
	Level         domain.RiskLevel `json:"level"`
	GasPrice      *big.Int         `json:"gas_price"`
	AvgGasPrice   *big.Int         `json:"avg_gas_price"`
	GasVolatility float64          `json:"gas_volatility"`
	Factors       []string         `json:"factors"`
}

// Store is the persistence interface every recorder backend implements.
type Store interface {
	RecordExecution(ExecutionRecord) error
	RecordRiskSnapshot(RiskSnapshotRecord) error
}
