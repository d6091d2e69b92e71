package recorder

import (
	"bufio"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullmev/arbengine/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func TestFileStoreRecordExecutionAppendsJSONLine(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = fixedClock(at)

	rec := ExecutionRecord{
		Timestamp:      at,
		BundleHash:     common.HexToHash("0xabc"),
		TargetBlock:    101,
		RealizedProfit: big.NewInt(5_000),
		FinalState:     domain.BundleIncluded,
	}
	require.NoError(t, store.RecordExecution(rec))

	path := filepath.Join(dir, "executions-2026-03-01.jsonl")
	lines := readLines(t, path)
	require.Len(t, lines, 1)

	var got ExecutionRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, uint64(101), got.TargetBlock)
	assert.Equal(t, domain.BundleIncluded, got.FinalState)
}

func TestFileStoreRollsOverByUTCDay(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)

	store.now = fixedClock(day1)
	require.NoError(t, store.RecordExecution(ExecutionRecord{Timestamp: day1}))
	store.now = fixedClock(day2)
	require.NoError(t, store.RecordExecution(ExecutionRecord{Timestamp: day2}))

	_, err1 := os.Stat(filepath.Join(dir, "executions-2026-03-01.jsonl"))
	_, err2 := os.Stat(filepath.Join(dir, "executions-2026-03-02.jsonl"))
	assert.NoError(t, err1)
	assert.NoError(t, err2)
}

func TestFileStoreRecordRiskSnapshotSeparateFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.now = fixedClock(at)

	require.NoError(t, store.RecordRiskSnapshot(RiskSnapshotRecord{
		Timestamp: at,
		Level:     domain.RiskHigh,
		Factors:   []string{"high gas volatility"},
	}))

	lines := readLines(t, filepath.Join(dir, "risk-2026-03-01.jsonl"))
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "high gas volatility")
}
