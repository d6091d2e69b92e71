package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
chain_id: 1
start_token:
  address: "0x0000000000000000000000000000000000000a"
  decimals: 18
supported_tokens:
  - address: "0x0000000000000000000000000000000000000b"
    decimals: 6
venues:
  uniswap-v2:
    enabled: true
    family: v2
    router: "0x0000000000000000000000000000000000000c"
    factory: "0x0000000000000000000000000000000000000d"
  uniswap-v3:
    enabled: true
    family: v3
    router: "0x0000000000000000000000000000000000000e"
    factory: "0x0000000000000000000000000000000000000f"
    quoter: "0x0000000000000000000000000000000000001a"
    fees: [500, 3000]
max_path_length: 4
max_paths: 5
min_allocation_share: 0.1
min_profit_threshold: 0.01
slippage_tolerance: 0.01
gas:
  min_priority_fee: 1.5
  max_priority_fee: 6
  max_profit_fraction: 0.1
mev:
  max_blocks_ahead: 4
rate_limit:
  rps: 20
  max_backoff_s: 15
  batch_size: 10
storage:
  dir: /tmp/arbengine
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoadConfigParsesYAML(t *testing.T) {
	cfg, err := LoadConfig(writeSampleConfig(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.ChainID)
	assert.Len(t, cfg.Venues, 2)
	assert.Equal(t, 4, cfg.MaxPathLength)
}

func TestToVenueConfigsRejectsUnknownFamily(t *testing.T) {
	cfg := &Config{Venues: map[string]VenueYAMLData{"bad": {Enabled: true, Family: "unknown"}}}
	_, err := cfg.ToVenueConfigs()
	assert.Error(t, err)
}

func TestToVenueConfigsScalarFeeBecomesSingleElementSlice(t *testing.T) {
	cfg := &Config{Venues: map[string]VenueYAMLData{
		"v2-venue": {Enabled: true, Family: "v2", Router: "0x01", Factory: "0x02", Fee: 30},
	}}
	venues, err := cfg.ToVenueConfigs()
	require.NoError(t, err)
	require.Len(t, venues, 1)
	assert.Equal(t, []uint32{30}, venues[0].Fees)
}

func TestToPathFinderConfigAppliesMinMarginDefault(t *testing.T) {
	cfg, err := LoadConfig(writeSampleConfig(t))
	require.NoError(t, err)

	pfCfg, err := cfg.ToPathFinderConfig()
	require.NoError(t, err)
	got, _ := pfCfg.MinMargin.Float64()
	assert.Equal(t, 0.002, got)
	assert.Equal(t, 4, pfCfg.MaxPathLength)
}

func TestToAssemblerConfigConvertsGweiToWei(t *testing.T) {
	cfg, err := LoadConfig(writeSampleConfig(t))
	require.NoError(t, err)

	asmCfg := cfg.ToAssemblerConfig()
	assert.Equal(t, "1500000000", asmCfg.MinPriorityFee.String())
	assert.Equal(t, "6000000000", asmCfg.MaxPriorityFee.String())
}

func TestToPoolsResolvesVenueFamily(t *testing.T) {
	cfg := &Config{
		Venues: map[string]VenueYAMLData{"uniswap-v2": {Family: "v2"}},
		Pools: []PoolYAMLData{{
			Venue:   "uniswap-v2",
			Address: "0x0000000000000000000000000000000000000c",
			Tokens: []TokenYAMLData{
				{Address: "0x0000000000000000000000000000000000000a", Decimals: 18},
				{Address: "0x0000000000000000000000000000000000000b", Decimals: 6},
			},
			Fee: 30,
		}},
	}
	pools, err := cfg.ToPools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "V2", string(pools[0].Type))
	assert.Len(t, pools[0].Tokens, 2)
}

func TestToPoolsRejectsUnknownVenue(t *testing.T) {
	cfg := &Config{Pools: []PoolYAMLData{{Venue: "missing", Address: "0x01"}}}
	_, err := cfg.ToPools()
	assert.Error(t, err)
}

func TestCapitalParsesDecimalString(t *testing.T) {
	cfg := &Config{CapitalWei: "1000000000000000000"}
	c, err := cfg.Capital()
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", c.String())
}

func TestCapitalDefaultsToZero(t *testing.T) {
	cfg := &Config{}
	c, err := cfg.Capital()
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Int64())
}

func TestCycleIntervalAppliesDefault(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 12*time.Second, cfg.CycleInterval())
}

func TestRateLimitParamsAppliesDefaultsWhenZero(t *testing.T) {
	cfg := &Config{}
	rps, batch, backoff := cfg.RateLimitParams()
	assert.Equal(t, 10.0, rps)
	assert.Equal(t, 1, batch)
	assert.Equal(t, 30_000_000_000.0, float64(backoff))
}
