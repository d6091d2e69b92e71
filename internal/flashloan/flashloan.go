// Package flashloan provides the Bundle Assembler's flash-loan collaborator
// (spec §4.11): a minimal Provider interface the assembler treats as an
// opaque pre-tx/post-tx pair, with one implementation per supported
// protocol selected by configuration.
package flashloan

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/venue"
)

// Provider borrows and repays a flash loan, each as an unsigned call the
// Bundle Assembler slots into the bundle ahead of / behind the swap sequence.
type Provider interface {
	Borrow(token common.Address, amount *big.Int) (venue.CallData, error)
	Repay(token common.Address, amount, fee *big.Int) (venue.CallData, error)
}

const aavePoolABIJSON = `[
	{"name":"flashLoanSimple","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"receiverAddress","type":"address"},{"name":"asset","type":"address"},
	 {"name":"amount","type":"uint256"},{"name":"params","type":"bytes"},{"name":"referralCode","type":"uint16"}],
	 "outputs":[]},
	{"name":"repay","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},
	 {"name":"interestRateMode","type":"uint256"},{"name":"onBehalfOf","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// AaveProvider wraps Aave V3's pool flash-loan entrypoints.
type AaveProvider struct {
	pool     common.Address
	receiver common.Address
	abi      abi.ABI
}

func NewAaveProvider(pool, receiver common.Address) (*AaveProvider, error) {
	parsed, err := abi.JSON(strings.NewReader(aavePoolABIJSON))
	if err != nil {
		return nil, fmt.Errorf("flashloan: parse aave abi: %w", err)
	}
	return &AaveProvider{pool: pool, receiver: receiver, abi: parsed}, nil
}

func (p *AaveProvider) Borrow(token common.Address, amount *big.Int) (venue.CallData, error) {
	data, err := p.abi.Pack("flashLoanSimple", p.receiver, token, amount, []byte{}, uint16(0))
	if err != nil {
		return venue.CallData{}, fmt.Errorf("flashloan: pack aave borrow: %w", err)
	}
	return venue.CallData{To: p.pool, Data: data}, nil
}

func (p *AaveProvider) Repay(token common.Address, amount, fee *big.Int) (venue.CallData, error) {
	total := new(big.Int).Add(amount, fee)
	data, err := p.abi.Pack("repay", token, total, big.NewInt(2), p.receiver)
	if err != nil {
		return venue.CallData{}, fmt.Errorf("flashloan: pack aave repay: %w", err)
	}
	return venue.CallData{To: p.pool, Data: data}, nil
}

const balancerVaultABIJSON = `[
	{"name":"flashLoan","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"recipient","type":"address"},{"name":"tokens","type":"address[]"},
	 {"name":"amounts","type":"uint256[]"},{"name":"userData","type":"bytes"}],
	 "outputs":[]}
]`

const erc20TransferABIJSON = `[
	{"name":"transfer","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

// BalancerProvider wraps Balancer V2's vault flash-loan entrypoint. Balancer
// charges no protocol fee, but the vault still must be made whole within the
// same transaction; Repay encodes that as a plain ERC20 transfer of the
// borrowed token back to the vault rather than a vault-specific call.
type BalancerProvider struct {
	vault     common.Address
	recipient common.Address
	abi       abi.ABI
	erc20ABI  abi.ABI
}

func NewBalancerProvider(vault, recipient common.Address) (*BalancerProvider, error) {
	parsed, err := abi.JSON(strings.NewReader(balancerVaultABIJSON))
	if err != nil {
		return nil, fmt.Errorf("flashloan: parse balancer abi: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20TransferABIJSON))
	if err != nil {
		return nil, fmt.Errorf("flashloan: parse erc20 abi: %w", err)
	}
	return &BalancerProvider{vault: vault, recipient: recipient, abi: parsed, erc20ABI: erc20}, nil
}

func (p *BalancerProvider) Borrow(token common.Address, amount *big.Int) (venue.CallData, error) {
	data, err := p.abi.Pack("flashLoan", p.recipient, []common.Address{token}, []*big.Int{amount}, []byte{})
	if err != nil {
		return venue.CallData{}, fmt.Errorf("flashloan: pack balancer borrow: %w", err)
	}
	return venue.CallData{To: p.vault, Data: data}, nil
}

func (p *BalancerProvider) Repay(token common.Address, amount, fee *big.Int) (venue.CallData, error) {
	total := new(big.Int).Add(amount, fee)
	data, err := p.erc20ABI.Pack("transfer", p.vault, total)
	if err != nil {
		return venue.CallData{}, fmt.Errorf("flashloan: pack balancer repay transfer: %w", err)
	}
	return venue.CallData{To: token, Data: data}, nil
}
