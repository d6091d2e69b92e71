package recorder

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ExecutionRow is the GORM model mirroring ExecutionRecord (spec §4.13:
// "same AutoMigrate-on-connect pattern as the teacher's NewMySQLRecorder"),
// adapted from the teacher's AssetSnapshotRecord shape — big.Int fields
// stored as decimal strings rather than native integer columns.
type ExecutionRow struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp        time.Time `gorm:"index;not null"`
	BundleHash       string    `gorm:"type:varchar(66);index;not null"`
	TargetBlock      uint64    `gorm:"not null"`
	RealizedProfit   string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	ValidationResult string    `gorm:"type:varchar(255)"`
	FinalState       string    `gorm:"type:varchar(32);not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

func (ExecutionRow) TableName() string { return "executions" }

// RiskSnapshotRow is the GORM model mirroring RiskSnapshotRecord.
type RiskSnapshotRow struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp     time.Time `gorm:"index;not null"`
	Level         string    `gorm:"type:varchar(16);not null"`
	GasPrice      string    `gorm:"type:varchar(78);not null"`
	AvgGasPrice   string    `gorm:"type:varchar(78);not null"`
	GasVolatility float64   `gorm:"not null"`
	Factors       string    `gorm:"type:varchar(255)"` // comma-joined
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (RiskSnapshotRow) TableName() string { return "risk_snapshots" }

// SQLMirror best-effort mirrors executions and risk snapshots into MySQL
// for operator querying (spec §4.13). It is optional: constructed only
// when a DSN is configured, and a write failure here never blocks the
// FileStore leg of a Fanout.
type SQLMirror struct {
	db *gorm.DB
}

// NewSQLMirror connects to dsn and migrates its two tables, mirroring the
// teacher's NewMySQLRecorder constructor shape exactly.
func NewSQLMirror(dsn string) (*SQLMirror, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("recorder: connect mysql: %w", err)
	}
	return NewSQLMirrorWithDB(db)
}

// NewSQLMirrorWithDB wraps an already-open GORM DB (used by tests against
// sqlmock, same pattern as the teacher's NewMySQLRecorderWithDB).
func NewSQLMirrorWithDB(db *gorm.DB) (*SQLMirror, error) {
	if err := db.AutoMigrate(&ExecutionRow{}, &RiskSnapshotRow{}); err != nil {
		return nil, fmt.Errorf("recorder: migrate schema: %w", err)
	}
	return &SQLMirror{db: db}, nil
}

func (m *SQLMirror) RecordExecution(rec ExecutionRecord) error {
	row := ExecutionRow{
		Timestamp:        rec.Timestamp,
		BundleHash:       rec.BundleHash.Hex(),
		TargetBlock:      rec.TargetBlock,
		RealizedProfit:   bigIntToString(rec.RealizedProfit),
		ValidationResult: rec.ValidationResult,
		FinalState:       string(rec.FinalState),
	}
	if err := m.db.Create(&row).Error; err != nil {
		return fmt.Errorf("recorder: insert execution: %w", err)
	}
	return nil
}

func (m *SQLMirror) RecordRiskSnapshot(rec RiskSnapshotRecord) error {
	row := RiskSnapshotRow{
		Timestamp:     rec.Timestamp,
		Level:         string(rec.Level),
		GasPrice:      bigIntToString(rec.GasPrice),
		AvgGasPrice:   bigIntToString(rec.AvgGasPrice),
		GasVolatility: rec.GasVolatility,
		Factors:       joinFactors(rec.Factors),
	}
	if err := m.db.Create(&row).Error; err != nil {
		return fmt.Errorf("recorder: insert risk snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (m *SQLMirror) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("recorder: underlying db: %w", err)
	}
	return sqlDB.Close()
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func joinFactors(factors []string) string {
	out := ""
	for i, f := range factors {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}
