// Package configs implements Configuration Loading: a YAML struct parsed
// by gopkg.in/yaml.v3, then converted into the strongly typed configs each
// engine component expects (spec §4.12), mirroring the teacher's own
// "YAML struct -> domain config converter" LoadConfig/ToX pattern.
package configs

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/nullmev/arbengine/internal/bundle"
	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/optimizer"
	"github.com/nullmev/arbengine/internal/pathfinder"
	"github.com/nullmev/arbengine/internal/venue"
)

// VenueYAMLData is one venues[*] entry.
type VenueYAMLData struct {
	Enabled bool     `yaml:"enabled"`
	Family  string   `yaml:"family"`
	Router  string   `yaml:"router"`
	Factory string   `yaml:"factory"`
	Quoter  string   `yaml:"quoter"`
	Fee     int      `yaml:"fee"`
	Fees    []uint32 `yaml:"fees"`
}

// TokenYAMLData names one token in the supported set by address+decimals.
type TokenYAMLData struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

type GasYAMLData struct {
	MinPriorityFeeGwei float64 `yaml:"min_priority_fee"`
	MaxPriorityFeeGwei float64 `yaml:"max_priority_fee"`
	MaxProfitFraction  float64 `yaml:"max_profit_fraction"`
}

type MEVYAMLData struct {
	SandwichDetection bool   `yaml:"sandwich_detection"`
	FrontrunDetection bool   `yaml:"frontrun_detection"`
	BackrunDetection  bool   `yaml:"backrun_detection"`
	MaxBundleSize     int    `yaml:"max_bundle_size"`
	MaxBlocksAhead    int    `yaml:"max_blocks_ahead"`
	CoinbaseAddress   string `yaml:"coinbase_address"` // relay builder's fee recipient, for Validate's allowed-address set
}

type RateLimitYAMLData struct {
	RPS         float64 `yaml:"rps"`
	MaxBackoffS int     `yaml:"max_backoff_s"`
	BatchSize   int     `yaml:"batch_size"`
}

type CacheYAMLData struct {
	TTLBlocks int `yaml:"ttl_blocks"`
}

type RPCYAMLData struct {
	PrimaryURL string   `yaml:"primary_url"`
	BackupURLs []string `yaml:"backup_urls"`
}

type RelayYAMLData struct {
	URL        string `yaml:"url"`
	AuthKeyEnv string `yaml:"auth_key_env"`
}

type SignerYAMLData struct {
	KeyEnv        string `yaml:"key_env"`
	DecryptKeyEnv string `yaml:"decrypt_key_env"`
}

type StorageYAMLData struct {
	Dir      string `yaml:"dir"`
	MySQLDSN string `yaml:"mysql_dsn"`
}

type FlashloanYAMLData struct {
	Provider string `yaml:"provider"`
	Pool     string `yaml:"pool"`     // Aave pool / Balancer vault address
	Receiver string `yaml:"receiver"` // flash-loan receiver contract
}

// PoolYAMLData names one statically configured pool: the seed set the
// engine treats as "discovered" at startup (spec §3's Pool "created on
// discovery" is satisfied here by operator-supplied addresses rather than
// an on-chain factory scan, which the pack's examples do not implement).
type PoolYAMLData struct {
	Venue   string          `yaml:"venue"`
	Address string          `yaml:"address"`
	Tokens  []TokenYAMLData `yaml:"tokens"`
	Fee     uint32          `yaml:"fee"`
}

// Config is the root YAML document (spec §6's recognized options, plus
// SPEC_FULL.md's ambient additions in §4.12/§6).
type Config struct {
	ChainID             int64                    `yaml:"chain_id"`
	StartToken          TokenYAMLData            `yaml:"start_token"`
	SupportedTokens     []TokenYAMLData          `yaml:"supported_tokens"`
	Venues              map[string]VenueYAMLData `yaml:"venues"`
	MaxPathLength       int                      `yaml:"max_path_length"`
	MaxPaths            int                      `yaml:"max_paths"`
	MinAllocationShare  float64                  `yaml:"min_allocation_share"`
	MinProfitThreshold  float64                  `yaml:"min_profit_threshold"`
	MinMargin           float64                  `yaml:"min_margin"`
	SlippageTolerance   float64                  `yaml:"slippage_tolerance"`
	MaxConcurrentTrades int                      `yaml:"max_concurrent_trades"`
	BaseGas             uint64                   `yaml:"base_gas"`
	PerHopGas           uint64                   `yaml:"per_hop_gas"`
	CapitalWei          string                   `yaml:"capital_wei"` // decimal string; capital budget C (spec §4.4)
	CycleIntervalS      int                      `yaml:"cycle_interval_s"`
	Gas                 GasYAMLData              `yaml:"gas"`
	MEV                 MEVYAMLData              `yaml:"mev"`
	RateLimit           RateLimitYAMLData        `yaml:"rate_limit"`
	Cache               CacheYAMLData            `yaml:"cache"`
	RPC                 RPCYAMLData              `yaml:"rpc"`
	Relay               RelayYAMLData            `yaml:"relay"`
	Signer              SignerYAMLData           `yaml:"signer"`
	Storage             StorageYAMLData          `yaml:"storage"`
	Flashloan           FlashloanYAMLData        `yaml:"flashloan"`
	Pools               []PoolYAMLData           `yaml:"pools"`
}

// LoadConfig reads and parses a YAML config file, mirroring the teacher's
// LoadConfig(path) (*Config, error) shape exactly.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configs: read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("configs: parse config yaml: %w", err)
	}
	return &cfg, nil
}

func toToken(t TokenYAMLData) (domain.TokenRef, error) {
	return domain.NewTokenRef(common.HexToAddress(t.Address), t.Decimals)
}

// ToVenueConfigs converts the venues map into the Venue Registry's input
// slice, keyed by venue id.
func (c *Config) ToVenueConfigs() ([]venue.VenueConfig, error) {
	out := make([]venue.VenueConfig, 0, len(c.Venues))
	for id, v := range c.Venues {
		fees := v.Fees
		if len(fees) == 0 && v.Fee != 0 {
			fees = []uint32{uint32(v.Fee)}
		}
		var family venue.Family
		switch v.Family {
		case "v2":
			family = venue.FamilyV2
		case "v3":
			family = venue.FamilyV3
		case "stable":
			family = venue.FamilyStable
		default:
			return nil, fmt.Errorf("configs: venue %q: unrecognized family %q", id, v.Family)
		}
		out = append(out, venue.VenueConfig{
			ID:      domain.VenueID(id),
			Enabled: v.Enabled,
			Family:  family,
			Router:  common.HexToAddress(v.Router),
			Factory: common.HexToAddress(v.Factory),
			Quoter:  common.HexToAddress(v.Quoter),
			Fees:    fees,
		})
	}
	return out, nil
}

// ToPathFinderConfig converts the path-search keys into pathfinder.Config.
func (c *Config) ToPathFinderConfig() (pathfinder.Config, error) {
	start, err := toToken(c.StartToken)
	if err != nil {
		return pathfinder.Config{}, fmt.Errorf("configs: start_token: %w", err)
	}
	supported := make([]domain.TokenRef, 0, len(c.SupportedTokens))
	for _, t := range c.SupportedTokens {
		tok, err := toToken(t)
		if err != nil {
			return pathfinder.Config{}, fmt.Errorf("configs: supported_tokens: %w", err)
		}
		supported = append(supported, tok)
	}

	minMargin := c.MinMargin
	if minMargin == 0 {
		minMargin = 0.002
	}
	maxPathLength := c.MaxPathLength
	if maxPathLength < 2 {
		maxPathLength = 3
	}

	return pathfinder.Config{
		StartToken:      start,
		SupportedTokens: supported,
		MaxPathLength:   maxPathLength,
		MinMargin:       big.NewFloat(minMargin),
		TopK:            c.MaxPaths,
		BaseGas:         c.BaseGas,
		PerHopGas:       c.PerHopGas,
	}, nil
}

// ToOptimizerConfig converts the allocation keys into optimizer.Config.
func (c *Config) ToOptimizerConfig() optimizer.Config {
	minShare := c.MinAllocationShare
	if minShare == 0 {
		minShare = 0.05
	}
	return optimizer.Config{
		MaxPaths:           c.MaxPaths,
		MinAllocationShare: big.NewFloat(minShare),
		SlippageTolerance:  big.NewFloat(c.SlippageTolerance),
	}
}

func gweiToWei(g float64) *big.Int {
	wei := new(big.Float).Mul(big.NewFloat(g), big.NewFloat(1e9))
	i, _ := wei.Int(nil)
	return i
}

// ToAssemblerConfig converts the gas/slippage keys into bundle.Config.
func (c *Config) ToAssemblerConfig() bundle.Config {
	maxProfitFraction := c.Gas.MaxProfitFraction
	if maxProfitFraction == 0 {
		maxProfitFraction = 0.1
	}
	return bundle.Config{
		BaseSlippage:      big.NewFloat(c.SlippageTolerance),
		MinPriorityFee:    gweiToWei(c.Gas.MinPriorityFeeGwei),
		MaxPriorityFee:    gweiToWei(c.Gas.MaxPriorityFeeGwei),
		MaxProfitFraction: big.NewFloat(maxProfitFraction),
		MinProfitAbsolute: gweiToWei(c.MinProfitThreshold),
		SwapDeadline:      2 * time.Minute,
		ChainID:           big.NewInt(c.ChainID),
	}
}

// ToControllerConfig converts the MEV/retry keys into bundle.ControllerConfig.
func (c *Config) ToControllerConfig(validation bundle.ValidationConfig) bundle.ControllerConfig {
	maxBlocksAhead := c.MEV.MaxBlocksAhead
	if maxBlocksAhead == 0 {
		maxBlocksAhead = 3
	}
	return bundle.ControllerConfig{
		MaxBlocksAhead:         uint64(maxBlocksAhead),
		BaseFeeChangeThreshold: big.NewFloat(0.10),
		Validation:             validation,
	}
}

// ToValidationConfig converts the validator keys into bundle.ValidationConfig.
func (c *Config) ToValidationConfig() bundle.ValidationConfig {
	return bundle.ValidationConfig{
		MinProfit:        gweiToWei(c.MinProfitThreshold),
		GasOverheadRatio: big.NewFloat(1.5),
	}
}

// ToPools converts the static pool seed list into domain.Pool values,
// resolving each pool's type tag from its referenced venue's family.
func (c *Config) ToPools() ([]domain.Pool, error) {
	out := make([]domain.Pool, 0, len(c.Pools))
	for _, p := range c.Pools {
		venueCfg, ok := c.Venues[p.Venue]
		if !ok {
			return nil, fmt.Errorf("configs: pool %s references unknown venue %q", p.Address, p.Venue)
		}
		var poolType domain.PoolType
		switch venueCfg.Family {
		case "v2":
			poolType = domain.PoolTypeV2
		case "v3":
			poolType = domain.PoolTypeV3
		case "stable":
			poolType = domain.PoolTypeStable
		default:
			return nil, fmt.Errorf("configs: pool %s: unrecognized venue family %q", p.Address, venueCfg.Family)
		}

		tokens := make([]domain.TokenRef, 0, len(p.Tokens))
		for _, t := range p.Tokens {
			tok, err := toToken(t)
			if err != nil {
				return nil, fmt.Errorf("configs: pool %s: %w", p.Address, err)
			}
			tokens = append(tokens, tok)
		}

		out = append(out, domain.Pool{
			Venue:  domain.VenueID(p.Venue),
			Addr:   common.HexToAddress(p.Address),
			Tokens: tokens,
			Fee:    p.Fee,
			Type:   poolType,
		})
	}
	return out, nil
}

// Capital parses the capital_wei decimal string into the budget the
// optimizer splits across paths, defaulting to zero if unset.
func (c *Config) Capital() (*big.Int, error) {
	if c.CapitalWei == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(c.CapitalWei, 10)
	if !ok {
		return nil, fmt.Errorf("configs: capital_wei %q is not a valid decimal integer", c.CapitalWei)
	}
	return amount, nil
}

// CoinbaseAddress returns the relay builder's fee recipient for the
// Simulation & Validation allowed-address set.
func (c *Config) CoinbaseAddress() common.Address {
	return common.HexToAddress(c.MEV.CoinbaseAddress)
}

// CycleInterval returns the engine's cycle/poll interval, defaulting to 12s
// (one Ethereum mainnet block).
func (c *Config) CycleInterval() time.Duration {
	if c.CycleIntervalS <= 0 {
		return 12 * time.Second
	}
	return time.Duration(c.CycleIntervalS) * time.Second
}

// RateLimitParams returns the rate limiter's three constructor arguments.
func (c *Config) RateLimitParams() (rps float64, batchSize int, maxBackoff time.Duration) {
	rps = c.RateLimit.RPS
	if rps == 0 {
		rps = 10
	}
	batchSize = c.RateLimit.BatchSize
	if batchSize == 0 {
		batchSize = 1
	}
	maxBackoffS := c.RateLimit.MaxBackoffS
	if maxBackoffS == 0 {
		maxBackoffS = 30
	}
	return rps, batchSize, time.Duration(maxBackoffS) * time.Second
}
