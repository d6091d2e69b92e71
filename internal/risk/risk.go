// Package risk implements the Risk Analyzer (spec §4.5): it observes the
// trailing block window's base fees, computes gas-price volatility, and
// produces a discrete RiskAssessment that the Bundle Assembler and
// Submission Controller condition their behavior on.
//
// Grounded on original_source's
// arbitrage_bot/core/web3/flashbots/risk_analyzer.py: the same
// volatility-then-factors-then-level decision structure, trimmed of the
// Python module's unrelated detection-accuracy/effectiveness telemetry
// (out of this spec's scope).
package risk

import (
	"math/big"
	"time"

	"github.com/nullmev/arbengine/internal/domain"
)

const (
	highThreshold   = 0.35
	mediumThreshold = 0.25
	spikeMultiplier = 1.8

	// averagingWindow is the number of trailing blocks the average base fee
	// is computed over (spec §4.5: "10-block averaging window").
	averagingWindow = 10
	trendRecent     = 3
	trendPrior      = 7
)

// BlockSample is one trailing block's observed base fee, newest first is
// not required - samples are consumed in the order blocks occurred.
type BlockSample struct {
	Height  uint64
	BaseFee *big.Int
}

// Analyzer computes a RiskAssessment from a rolling window of recent blocks.
type Analyzer struct {
	window []BlockSample // bounded ring buffer, oldest first
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{window: make([]BlockSample, 0, averagingWindow+trendPrior)}
}

// Observe appends the latest block to the trailing window, discarding
// anything older than trendPrior+trendRecent blocks need.
func (a *Analyzer) Observe(sample BlockSample) {
	a.window = append(a.window, sample)
	maxLen := trendPrior + trendRecent
	if maxLen < averagingWindow {
		maxLen = averagingWindow
	}
	if len(a.window) > maxLen {
		a.window = a.window[len(a.window)-maxLen:]
	}
}

// Assess computes the current RiskAssessment from currentGasPrice (an
// external gas-price oracle reading) and the observed block window (spec
// §4.5 outputs and level rules).
func (a *Analyzer) Assess(currentGasPrice *big.Int, now time.Time) domain.RiskAssessment {
	avgGasPrice := a.averageBaseFee()
	volatility := gasVolatility(currentGasPrice, avgGasPrice)

	var factors []string
	if volatility > mediumThreshold {
		factors = append(factors, "high gas volatility")
	}
	if avgGasPrice.Sign() > 0 {
		spike := new(big.Float).Mul(new(big.Float).SetInt(avgGasPrice), big.NewFloat(spikeMultiplier))
		if new(big.Float).SetInt(currentGasPrice).Cmp(spike) > 0 {
			factors = append(factors, "gas price spike")
		}
	}
	if a.trendingUp() {
		factors = append(factors, "base-fee trend up")
	}

	level := determineLevel(factors, volatility)

	return domain.RiskAssessment{
		Level:         level,
		GasPrice:      currentGasPrice,
		AvgGasPrice:   avgGasPrice,
		GasVolatility: big.NewFloat(volatility),
		BaseFee:       a.latestBaseFee(),
		Factors:       factors,
		AsOf:          now,
	}
}

// latestBaseFee returns the most recently observed block's base fee.
func (a *Analyzer) latestBaseFee() *big.Int {
	if len(a.window) == 0 {
		return big.NewInt(0)
	}
	return a.window[len(a.window)-1].BaseFee
}

// averageBaseFee averages the trailing averagingWindow blocks' base fees.
func (a *Analyzer) averageBaseFee() *big.Int {
	n := len(a.window)
	if n == 0 {
		return big.NewInt(0)
	}
	start := 0
	if n > averagingWindow {
		start = n - averagingWindow
	}
	sample := a.window[start:]

	sum := new(big.Int)
	for _, s := range sample {
		sum.Add(sum, s.BaseFee)
	}
	return new(big.Int).Div(sum, big.NewInt(int64(len(sample))))
}

// trendingUp reports whether the average of the last trendRecent blocks'
// base fees exceeds the average of the trendPrior blocks before those
// (spec §4.5's "base-fee trend up" factor).
func (a *Analyzer) trendingUp() bool {
	n := len(a.window)
	if n < trendRecent+trendPrior {
		return false
	}
	recent := a.window[n-trendRecent:]
	prior := a.window[n-trendRecent-trendPrior : n-trendRecent]

	recentAvg := averageOf(recent)
	priorAvg := averageOf(prior)
	return recentAvg.Cmp(priorAvg) > 0
}

func averageOf(samples []BlockSample) *big.Int {
	sum := new(big.Int)
	for _, s := range samples {
		sum.Add(sum, s.BaseFee)
	}
	return new(big.Int).Div(sum, big.NewInt(int64(len(samples))))
}

// gasVolatility computes |current - average| / average, or 0 if average is
// zero (no history yet).
func gasVolatility(current, average *big.Int) float64 {
	if average.Sign() == 0 {
		return 0
	}
	diff := new(big.Float).Sub(new(big.Float).SetInt(current), new(big.Float).SetInt(average))
	diff.Abs(diff)
	ratio := new(big.Float).Quo(diff, new(big.Float).SetInt(average))
	f, _ := ratio.Float64()
	return f
}

// determineLevel applies spec §4.5's level rules: level is monotone in
// both volatility and the factor count.
func determineLevel(factors []string, volatility float64) domain.RiskLevel {
	if volatility > highThreshold || len(factors) >= 2 {
		return domain.RiskHigh
	}
	if volatility > mediumThreshold || len(factors) == 1 {
		return domain.RiskMedium
	}
	return domain.RiskLow
}
