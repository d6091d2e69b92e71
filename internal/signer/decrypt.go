package signer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Decrypt reverses the encryption the teacher's deployment tooling applies
// to the trading key before it is stored in the ENC_PK env var: AES-GCM
// with the nonce prefixed to the ciphertext, both hex-encoded. No key
// management library appears in the retrieved corpus, so this is a direct
// stdlib crypto/aes+cipher implementation rather than an out-of-pack
// dependency (e.g. age, sops).
func Decrypt(key []byte, encryptedHex string) (*ecdsa.PrivateKey, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("signer: build aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("signer: build gcm: %w", err)
	}

	raw, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return nil, fmt.Errorf("signer: decode ciphertext: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("signer: ciphertext shorter than nonce")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("signer: decrypt: %w", err)
	}

	pk, err := crypto.HexToECDSA(string(plaintext))
	if err != nil {
		return nil, fmt.Errorf("signer: parse decrypted private key: %w", err)
	}
	return pk, nil
}
