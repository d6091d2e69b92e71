package engine

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullmev/arbengine/internal/bundle"
	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/optimizer"
	"github.com/nullmev/arbengine/internal/pathfinder"
	"github.com/nullmev/arbengine/internal/risk"
	"github.com/nullmev/arbengine/internal/signer"
	"github.com/nullmev/arbengine/internal/transport"
	"github.com/nullmev/arbengine/internal/venue"
)

// fakeChain is a ChainReader test double; headErr forces cycle() to fail.
type fakeChain struct {
	height  uint64
	headErr error
	gasPrice *big.Int
}

func (f *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &gethtypes.Header{Number: new(big.Int).SetUint64(f.height), BaseFee: big.NewInt(20_000_000_000)}, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if f.gasPrice != nil {
		return f.gasPrice, nil
	}
	return big.NewInt(25_000_000_000), nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	return nil, nil
}

func emptyEngine(t *testing.T, chain ChainReader) *Engine {
	t.Helper()
	registry, err := venue.NewRegistry(nil, func(cfg venue.VenueConfig) (venue.Adapter, error) { return nil, nil })
	require.NoError(t, err)

	finder := pathfinder.NewFinder(pathfinder.Config{}, nil, registry, nil)
	opt := optimizer.NewOptimizer(optimizer.Config{})
	riskAn := risk.NewAnalyzer()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := signer.NewSigner(key, 0)
	assembler := bundle.NewAssembler(bundle.Config{ChainID: big.NewInt(1)}, registry, s, nil, nil)

	relayKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{}})
	}))
	t.Cleanup(server.Close)
	relay := transport.NewRelayClient(server.Client(), server.URL, relayKey)
	simulator := bundle.NewSimulator(relay)
	controller := bundle.NewController(simulator, relay, assembler, bundle.ControllerConfig{
		MaxBlocksAhead:         3,
		BaseFeeChangeThreshold: big.NewFloat(0.10),
		Validation:             bundle.ValidationConfig{MinProfit: big.NewInt(0), GasOverheadRatio: big.NewFloat(1.5)},
	})

	startToken, err := domain.NewTokenRef(common.HexToAddress("0x01"), 18)
	require.NoError(t, err)

	return NewEngine(chain, registry, finder, opt, riskAn, assembler, controller, nil, Config{
		StartToken:    startToken,
		Capital:       big.NewInt(1_000_000),
		CycleInterval: 10 * time.Millisecond,
	})
}

func TestCycleReturnsNoOpportunityWhenNoVenuesEnabled(t *testing.T) {
	e := emptyEngine(t, &fakeChain{height: 100})
	outcome, err := e.cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoOpportunity, outcome.Kind)
}

func TestCycleSurfacesChainHeadError(t *testing.T) {
	e := emptyEngine(t, &fakeChain{headErr: assertErr("rpc down")})
	_, err := e.cycle(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	e := emptyEngine(t, &fakeChain{height: 100})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	report := make(chan domain.CycleOutcome, 16)
	err := e.Run(ctx, report)
	assert.NoError(t, err)
}

func TestRunHaltsAfterConsecutiveErrors(t *testing.T) {
	e := emptyEngine(t, &fakeChain{headErr: assertErr("rpc down")})
	e.cfg.MaxConsecutiveErrors = 2

	report := make(chan domain.CycleOutcome, 16)
	err := e.Run(context.Background(), report)
	require.Error(t, err)

	seen := 0
	for {
		select {
		case o := <-report:
			assert.Equal(t, domain.OutcomeTransportAborted, o.Kind)
			seen++
		default:
			assert.Equal(t, 2, seen)
			return
		}
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
