// Command arbengine runs the on-chain arbitrage engine's opportunity
// pipeline as a single long-lived process.
//
// Wiring order: load the YAML config, decrypt the trading and relay keys
// from the encrypted env vars it names, dial the RPC endpoint, construct the
// engine's collaborators, then run the cycle loop in a goroutine and drain
// its report channel until shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"github.com/nullmev/arbengine/configs"
	"github.com/nullmev/arbengine/internal/bundle"
	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/engine"
	"github.com/nullmev/arbengine/internal/flashloan"
	"github.com/nullmev/arbengine/internal/optimizer"
	"github.com/nullmev/arbengine/internal/pathfinder"
	"github.com/nullmev/arbengine/internal/quoting"
	"github.com/nullmev/arbengine/internal/recorder"
	"github.com/nullmev/arbengine/internal/risk"
	"github.com/nullmev/arbengine/internal/signer"
	"github.com/nullmev/arbengine/internal/transport"
	"github.com/nullmev/arbengine/internal/venue"
)

func main() {
	// .env.local is optional; ignore a missing file the way a deployment
	// that injects env vars directly would.
	_ = godotenv.Load(".env.local")

	configPath := os.Getenv("ARBENGINE_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yml"
	}
	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	decryptKey := os.Getenv(cfg.Signer.DecryptKeyEnv)
	if decryptKey == "" {
		log.Fatalf("%s not set", cfg.Signer.DecryptKeyEnv)
	}

	encTradingKey := os.Getenv(cfg.Signer.KeyEnv)
	if encTradingKey == "" {
		log.Fatalf("%s not set", cfg.Signer.KeyEnv)
	}
	tradingKey, err := signer.Decrypt([]byte(decryptKey), encTradingKey)
	if err != nil {
		log.Fatalf("decrypt trading key: %v", err)
	}

	encRelayKey := os.Getenv(cfg.Relay.AuthKeyEnv)
	if encRelayKey == "" {
		log.Fatalf("%s not set", cfg.Relay.AuthKeyEnv)
	}
	relayAuthKey, err := signer.Decrypt([]byte(decryptKey), encRelayKey)
	if err != nil {
		log.Fatalf("decrypt relay auth key: %v", err)
	}

	client, err := ethclient.Dial(cfg.RPC.PrimaryURL)
	if err != nil {
		log.Fatalf("dial rpc: %v", err)
	}

	rps, batchSize, maxBackoff := cfg.RateLimitParams()
	limiter := transport.NewLimiter(rps, batchSize, maxBackoff)
	backend := transport.NewRateLimitedBackend(client, limiter)

	venueConfigs, err := cfg.ToVenueConfigs()
	if err != nil {
		log.Fatalf("venue configs: %v", err)
	}
	registry, err := venue.NewRegistry(venueConfigs, adapterFactory(backend))
	if err != nil {
		log.Fatalf("build venue registry: %v", err)
	}

	pools, err := cfg.ToPools()
	if err != nil {
		log.Fatalf("pool seed list: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quotingEngine := quoting.NewEngine(registry, quoting.Config{
		CacheTTLBlocks: uint64(cfg.Cache.TTLBlocks),
		CurrentBlock: func() uint64 {
			n, err := client.BlockNumber(ctx)
			if err != nil {
				return 0
			}
			return n
		},
	})

	pfCfg, err := cfg.ToPathFinderConfig()
	if err != nil {
		log.Fatalf("path finder config: %v", err)
	}
	finder := pathfinder.NewFinder(pfCfg, quotingEngine, registry, poolLookup(pools))

	opt := optimizer.NewOptimizer(cfg.ToOptimizerConfig())
	riskAnalyzer := risk.NewAnalyzer()

	walletAddr := crypto.PubkeyToAddress(tradingKey.PublicKey)
	startNonce, err := client.PendingNonceAt(ctx, walletAddr)
	if err != nil {
		log.Printf("fetch starting nonce: %v (defaulting to 0)", err)
		startNonce = 0
	}
	bundleSigner := signer.NewSigner(tradingKey, startNonce)
	walletAddr = bundleSigner.Address()

	flProvider, err := buildFlashloanProvider(cfg)
	if err != nil {
		log.Fatalf("flashloan provider: %v", err)
	}

	assembler := bundle.NewAssembler(cfg.ToAssemblerConfig(), registry, bundleSigner, flProvider, nil)

	relay := transport.NewRelayClient(http.DefaultClient, cfg.Relay.URL, relayAuthKey)
	simulator := bundle.NewSimulator(relay)
	controller := bundle.NewController(simulator, relay, assembler, cfg.ToControllerConfig(cfg.ToValidationConfig()))

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("build recorder: %v", err)
	}

	startToken, err := startTokenOf(cfg)
	if err != nil {
		log.Fatalf("start token: %v", err)
	}
	capital, err := cfg.Capital()
	if err != nil {
		log.Fatalf("capital: %v", err)
	}

	eng := engine.NewEngine(client, registry, finder, opt, riskAnalyzer, assembler, controller, store, engine.Config{
		StartToken:        startToken,
		Capital:           capital,
		Wallet:            walletAddr,
		Coinbase:          cfg.CoinbaseAddress(),
		CycleInterval:     cfg.CycleInterval(),
		SlippageTolerance: big.NewFloat(cfg.SlippageTolerance),
	})

	report := make(chan domain.CycleOutcome, 100)
	go func() {
		if err := eng.Run(ctx, report); err != nil {
			log.Printf("engine halted: %v", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case outcome, ok := <-report:
			if !ok {
				return
			}
			log.Printf("cycle outcome: kind=%s bundle=%s profit=%v failing=%q",
				outcome.Kind, outcome.BundleHash, outcome.RealizedProfit, outcome.FailingCheck)
		case <-sigCh:
			log.Printf("shutdown signal received")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func adapterFactory(backend transport.EthBackend) venue.AdapterFactory {
	return func(cfg venue.VenueConfig) (venue.Adapter, error) {
		switch cfg.Family {
		case venue.FamilyV2:
			return venue.NewV2Adapter(backend)
		case venue.FamilyV3:
			return venue.NewV3Adapter(backend, cfg.Quoter)
		case venue.FamilyStable:
			return venue.NewStableAdapter(backend)
		default:
			return nil, fmt.Errorf("unrecognized venue family %q", cfg.Family)
		}
	}
}

// poolLookup builds a pathfinder.PoolLookup over the configured static
// pool seed list, filtering by venue and requiring both tokens present.
func poolLookup(pools []domain.Pool) pathfinder.PoolLookup {
	return func(venueID domain.VenueID, tokenA, tokenB common.Address) []domain.Pool {
		var out []domain.Pool
		for _, p := range pools {
			if p.Venue != venueID {
				continue
			}
			if hasToken(p.Tokens, tokenA) && hasToken(p.Tokens, tokenB) {
				out = append(out, p)
			}
		}
		return out
	}
}

func hasToken(tokens []domain.TokenRef, addr common.Address) bool {
	for _, t := range tokens {
		if t.Address == addr {
			return true
		}
	}
	return false
}

func startTokenOf(cfg *configs.Config) (domain.TokenRef, error) {
	return domain.NewTokenRef(common.HexToAddress(cfg.StartToken.Address), cfg.StartToken.Decimals)
}

func buildFlashloanProvider(cfg *configs.Config) (flashloan.Provider, error) {
	switch cfg.Flashloan.Provider {
	case "":
		return nil, nil
	case "aave":
		return flashloan.NewAaveProvider(common.HexToAddress(cfg.Flashloan.Pool), common.HexToAddress(cfg.Flashloan.Receiver))
	case "balancer":
		return flashloan.NewBalancerProvider(common.HexToAddress(cfg.Flashloan.Pool), common.HexToAddress(cfg.Flashloan.Receiver))
	default:
		return nil, fmt.Errorf("unrecognized flashloan provider %q", cfg.Flashloan.Provider)
	}
}

// buildStore always constructs the FileStore (spec §4.13: "always-on"); a
// MySQL DSN additionally fans out to a best-effort SQLMirror.
func buildStore(cfg *configs.Config) (recorder.Store, error) {
	dir := cfg.Storage.Dir
	if dir == "" {
		dir = "data/arbengine"
	}
	files, err := recorder.NewFileStore(dir)
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	if cfg.Storage.MySQLDSN == "" {
		return files, nil
	}
	mirror, err := recorder.NewSQLMirror(cfg.Storage.MySQLDSN)
	if err != nil {
		log.Printf("sql mirror unavailable, continuing with file store only: %v", err)
		return files, nil
	}
	return recorder.NewFanout(files, mirror), nil
}
