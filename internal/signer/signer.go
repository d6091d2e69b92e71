// Package signer provides the Bundle Assembler's signing oracle (spec
// §4.10): a local ECDSA key distinct from the relay's authentication key,
// used to sign bundle transactions. Relay auth headers are signed by
// transport.RelayClient with its own auth key, not through this package.
// Loaded the way the teacher's cmd/main.go loads its trading key -
// an AES-GCM-encrypted env var decrypted with a second env-provided key.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the minimal signing surface the Bundle Assembler needs.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
	SignAuth(digest [32]byte) ([]byte, error)
	NextNonce() uint64
}

// ecdsaSigner wraps a single local private key. Nonces are handed out
// monotonically and never handed back: neither the signer nor the
// Submission Controller re-issues the nonce of a rejected submission.
type ecdsaSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	nonce   uint64
}

// NewSigner builds a Signer from a raw private key and the account's
// current on-chain nonce (the caller fetches this once at startup).
func NewSigner(key *ecdsa.PrivateKey, startNonce uint64) Signer {
	return &ecdsaSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		nonce:   startNonce,
	}
}

func (s *ecdsaSigner) Address() common.Address { return s.address }

func (s *ecdsaSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign tx: %w", err)
	}
	return signed, nil
}

// SignAuth signs a 32-byte digest with this signer's key. RelayClient does
// not call it; the relay auth header is signed with the relay's own key.
func (s *ecdsaSigner) SignAuth(digest [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign auth digest: %w", err)
	}
	return sig, nil
}

// NextNonce hands out the next nonce for this account, monotonically.
func (s *ecdsaSigner) NextNonce() uint64 {
	n := s.nonce
	s.nonce++
	return n
}
