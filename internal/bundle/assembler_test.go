package bundle

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullmev/arbengine/internal/domain"
	"github.com/nullmev/arbengine/internal/signer"
	"github.com/nullmev/arbengine/internal/venue"
)

type stubAdapter struct{}

func (stubAdapter) Quote(ctx context.Context, pool domain.Pool, tokenIn, tokenOut domain.TokenRef, amountIn *big.Int) (domain.Quote, error) {
	return domain.Quote{}, nil
}
func (stubAdapter) EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	return nil, nil
}
func (stubAdapter) PoolState(ctx context.Context, pool domain.Pool) (domain.PoolState, error) {
	return domain.PoolState{}, nil
}
func (stubAdapter) PriceImpact(q domain.Quote, s domain.PoolState) (*big.Float, error) {
	return big.NewFloat(0), nil
}
func (stubAdapter) BuildSwap(step domain.PathStep, recipient common.Address, deadline *big.Int, slippage *big.Float) (venue.CallData, error) {
	return venue.CallData{To: step.Pool.Addr, Data: []byte{0x01, 0x02}}, nil
}

func testRegistry(t *testing.T) *venue.Registry {
	t.Helper()
	r, err := venue.NewRegistry([]venue.VenueConfig{
		{ID: "venue-a", Enabled: true, Family: venue.FamilyV2, Router: common.HexToAddress("0x1"), Factory: common.HexToAddress("0x2")},
	}, func(cfg venue.VenueConfig) (venue.Adapter, error) { return stubAdapter{}, nil })
	require.NoError(t, err)
	return r
}

func testPlan(t *testing.T) domain.AllocationPlan {
	t.Helper()
	token, err := domain.NewTokenRef(common.HexToAddress("0xaaa"), 18)
	require.NoError(t, err)
	path := domain.ArbitragePath{
		Steps: []domain.PathStep{
			{Venue: "venue-a", Pool: domain.Pool{Addr: common.HexToAddress("0xpool")}, TokenIn: token, TokenOut: token, AmountIn: big.NewInt(1_000_000), AmountOut: big.NewInt(1_010_000)},
		},
		TotalGas:    150_000,
		GrossProfit: big.NewInt(10_000),
		NetProfit:   big.NewInt(9_000),
	}
	return domain.AllocationPlan{
		StartToken:     token,
		Allocations:    []domain.PathAllocation{{Path: path, Amount: big.NewInt(1_000_000)}},
		ExpectedProfit: big.NewFloat(9_000),
	}
}

func testAssembler(t *testing.T) *Assembler {
	t.Helper()
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := signer.NewSigner(pk, 0)
	return NewAssembler(Config{
		BaseSlippage:   big.NewFloat(0.005),
		MinPriorityFee: big.NewInt(1e9),
		MaxPriorityFee: big.NewInt(5e9),
		ChainID:        big.NewInt(1),
	}, testRegistry(t), s, nil, nil)
}

func TestAssembleProducesDraftBundle(t *testing.T) {
	asm := testAssembler(t)
	plan := testPlan(t)

	bundle, err := asm.Assemble(plan, domain.RiskAssessment{Level: domain.RiskLow}, 100, big.NewInt(20e9))
	require.NoError(t, err)
	assert.Equal(t, domain.BundleDraft, bundle.State)
	assert.Equal(t, uint64(101), bundle.TargetBlock)
	assert.Len(t, bundle.Txs, 1)
}

func TestAssembleScalesPriorityFeeByRisk(t *testing.T) {
	asm := testAssembler(t)
	plan := testPlan(t)

	low, err := asm.Assemble(plan, domain.RiskAssessment{Level: domain.RiskLow}, 100, big.NewInt(20e9))
	require.NoError(t, err)
	high, err := asm.Assemble(plan, domain.RiskAssessment{Level: domain.RiskHigh}, 100, big.NewInt(20e9))
	require.NoError(t, err)

	assert.True(t, high.Gas.PriorityFee.Cmp(low.Gas.PriorityFee) >= 0)
}

func TestAssembleAttachesBackrunOnElevatedRisk(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := signer.NewSigner(pk, 0)
	br := &countingBackrunner{}
	asm := NewAssembler(Config{
		BaseSlippage:   big.NewFloat(0.005),
		MinPriorityFee: big.NewInt(1e9),
		MaxPriorityFee: big.NewInt(5e9),
		ChainID:        big.NewInt(1),
	}, testRegistry(t), s, nil, br)

	plan := testPlan(t)
	_, err = asm.Assemble(plan, domain.RiskAssessment{Level: domain.RiskHigh}, 100, big.NewInt(20e9))
	require.NoError(t, err)
	assert.Equal(t, 1, br.calls)

	_, err = asm.Assemble(plan, domain.RiskAssessment{Level: domain.RiskLow}, 100, big.NewInt(20e9))
	require.NoError(t, err)
	assert.Equal(t, 1, br.calls) // low risk, small profit: no backrun
}

type countingBackrunner struct{ calls int }

func (b *countingBackrunner) Backrun(expectedProfit *big.Int) (venue.CallData, error) {
	b.calls++
	return venue.CallData{To: common.HexToAddress("0xback"), Data: []byte{0x09}}, nil
}

