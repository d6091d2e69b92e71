package transport

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/nullmev/arbengine/internal/arberr"
)

// RelayClient talks to a Flashbots-style private bundle relay: an
// authenticated JSON-RPC endpoint where the auth header is derived from a
// key reserved for signing relay requests, distinct from the trading key
// (spec §6, grounded on original_source's FlashbotsRelay._sign_request).
type RelayClient struct {
	httpClient *http.Client
	url        string
	authKey    *ecdsa.PrivateKey
}

func NewRelayClient(httpClient *http.Client, url string, authKey *ecdsa.PrivateKey) *RelayClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RelayClient{httpClient: httpClient, url: url, authKey: authKey}
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// send performs one authenticated JSON-RPC call, signing the canonical
// request body with the relay auth key and attaching
// "X-Relay-Signature: {address}:{signature_hex}" per spec §6.
func (r *RelayClient) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, &arberr.ProtocolError{Op: method, Err: err}
	}

	digest := crypto.Keccak256(body)
	sig, err := crypto.Sign(digest, r.authKey)
	if err != nil {
		return nil, &arberr.ProtocolError{Op: method, Err: err}
	}
	addr := crypto.PubkeyToAddress(r.authKey.PublicKey)
	header := fmt.Sprintf("%s:%x", addr.Hex(), sig)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, &arberr.TransportError{Op: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Relay-Signature", header)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &arberr.TransportError{Op: method, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &arberr.TransportError{Op: method, Err: err}
	}
	if resp.StatusCode >= 500 {
		return nil, &arberr.TransportError{Op: method, Err: fmt.Errorf("relay %d: %s", resp.StatusCode, raw)}
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, &arberr.ProtocolError{Op: method, Err: err}
	}
	if rpcResp.Error != nil {
		return nil, &arberr.ProtocolError{Op: method, Err: fmt.Errorf("%d: %s", rpcResp.Error.Code, rpcResp.Error.Message)}
	}
	return rpcResp.Result, nil
}

// SimulateBundleParams is the wire shape spec §6 names for simulate-bundle.
type SimulateBundleParams struct {
	Txs              []string `json:"txs"`
	BlockNumber      string   `json:"blockNumber"`
	StateBlockNumber string   `json:"stateBlockNumber,omitempty"`
	Timestamp        string   `json:"timestamp,omitempty"`
}

func (r *RelayClient) SimulateBundle(ctx context.Context, p SimulateBundleParams) (json.RawMessage, error) {
	return r.send(ctx, "eth_callBundle", []SimulateBundleParams{p})
}

// SendBundleParams is the wire shape spec §6 names for send-bundle.
type SendBundleParams struct {
	Txs           []string `json:"txs"`
	BlockNumber   string   `json:"blockNumber"`
	MinTimestamp  string   `json:"minTimestamp,omitempty"`
	MaxTimestamp  string   `json:"maxTimestamp,omitempty"`
}

func (r *RelayClient) SendBundle(ctx context.Context, p SendBundleParams) (json.RawMessage, error) {
	return r.send(ctx, "eth_sendBundle", []SendBundleParams{p})
}

func (r *RelayClient) GetBundleStats(ctx context.Context, bundleHash string) (json.RawMessage, error) {
	return r.send(ctx, "flashbots_getBundleStats", []string{bundleHash})
}

func (r *RelayClient) GetUserStats(ctx context.Context) (json.RawMessage, error) {
	return r.send(ctx, "flashbots_getUserStats", []any{})
}
