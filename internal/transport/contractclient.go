// Package transport implements the collaborators spec §1 and §6 name but
// leave external: a rate-limited RPC client wrapping go-ethereum's
// ethclient.Client with a thin ABI-aware contract-call codec, and an
// authenticated relay client. Pool adapters never talk to ethclient
// directly; they go through ContractClient.
package transport

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EthBackend is the subset of *ethclient.Client a ContractClient needs;
// narrowed to an interface so adapters and the quoting engine can be tested
// against a fake backend without a live RPC endpoint.
type EthBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

// DecodedTransaction is the generic result of decoding a contract call's
// method name plus argument values.
type DecodedTransaction struct {
	MethodName string         `json:"methodName"`
	Args       map[string]any `json:"args"`
}

// ContractClient binds one on-chain contract (address + ABI) to a backend,
// exposing view calls, transaction submission, and calldata decoding.
type ContractClient struct {
	client  EthBackend
	address common.Address
	abi     abi.ABI
}

// NewContractClient constructs a ContractClient for a single contract instance.
func NewContractClient(client EthBackend, address common.Address, contractABI abi.ABI) *ContractClient {
	return &ContractClient{client: client, address: address, abi: contractABI}
}

func (c *ContractClient) Abi() abi.ABI                    { return c.abi }
func (c *ContractClient) ContractAddress() common.Address { return c.address }

// Call performs an eth_call against method with args, ABI-decoding the
// outputs. callerAddr may be nil to call unauthenticated (the common case
// for read-only view functions such as quoters).
func (c *ContractClient) Call(ctx context.Context, callerAddr *common.Address, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &c.address, Data: data}
	if callerAddr != nil {
		msg.From = *callerAddr
	}
	out, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// Send packs and submits a state-changing call. The transaction must
// already be constructed by the caller (nonce, gas, signature); Send only
// forwards it.
func (c *ContractClient) Send(ctx context.Context, tx *types.Transaction) error {
	return c.client.SendTransaction(ctx, tx)
}

// TransactionData fetches the raw calldata for a previously submitted tx hash.
func (c *ContractClient) TransactionData(ctx context.Context, hash common.Hash) ([]byte, error) {
	tx, _, err := c.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("fetch tx %s: %w", hash.Hex(), err)
	}
	return tx.Data(), nil
}

// DecodeTransaction decodes raw calldata against the bound ABI, returning
// the matched method name and named arguments.
func (c *ContractClient) DecodeTransaction(data []byte) (*DecodedTransaction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("lookup method selector: %w", err)
	}
	values := make(map[string]any)
	if err := method.Inputs.UnpackIntoMap(values, data[4:]); err != nil {
		return nil, fmt.Errorf("unpack %s args: %w", method.Name, err)
	}
	return &DecodedTransaction{MethodName: method.Name, Args: values}, nil
}

// ParseReceipt extracts a human-readable status string from a transaction
// receipt ("success" or "reverted").
func (c *ContractClient) ParseReceipt(receipt *types.Receipt) (string, error) {
	if receipt == nil {
		return "", fmt.Errorf("nil receipt")
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return "success", nil
	}
	return "reverted", nil
}
