package numeric

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrPathTooShort    = errors.New("numeric: path needs at least 2 tokens")
	ErrFeeCountMismatch = errors.New("numeric: fee count must equal len(tokens)-1")
	ErrMalformedPath    = errors.New("numeric: malformed encoded path")
)

// EncodeV3Path concatenates 20-byte token / 3-byte fee / ... / 20-byte token,
// the byte layout consumed by concentrated-liquidity-family routers.
func EncodeV3Path(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 {
		return nil, ErrPathTooShort
	}
	if len(fees) != len(tokens)-1 {
		return nil, ErrFeeCountMismatch
	}
	buf := make([]byte, 0, 20*len(tokens)+3*len(fees))
	for i, tok := range tokens {
		buf = append(buf, tok.Bytes()...)
		if i < len(fees) {
			var feeBytes [4]byte
			binary.BigEndian.PutUint32(feeBytes[:], fees[i])
			buf = append(buf, feeBytes[1:]...) // low 3 bytes, big-endian
		}
	}
	return buf, nil
}

// DecodeV3Path is the inverse of EncodeV3Path.
func DecodeV3Path(path []byte) ([]common.Address, []uint32, error) {
	const tokenLen, feeLen = 20, 3
	if len(path) < tokenLen || (len(path)-tokenLen)%(feeLen+tokenLen) != 0 {
		return nil, nil, ErrMalformedPath
	}
	var tokens []common.Address
	var fees []uint32

	tokens = append(tokens, common.BytesToAddress(path[:tokenLen]))
	rest := path[tokenLen:]
	for len(rest) > 0 {
		feeBytes := append([]byte{0}, rest[:feeLen]...)
		fees = append(fees, binary.BigEndian.Uint32(feeBytes))
		tokens = append(tokens, common.BytesToAddress(rest[feeLen:feeLen+tokenLen]))
		rest = rest[feeLen+tokenLen:]
	}
	return tokens, fees, nil
}

// EncodeV2Path returns the [token_in, token_out] address array V2-family
// routers expect; only ever called with exactly two tokens in this engine
// since V2 hops are single-pool swaps, but accepts any length ≥ 2 for
// multi-hop V2 router calls.
func EncodeV2Path(tokens []common.Address) ([]common.Address, error) {
	if len(tokens) < 2 {
		return nil, ErrPathTooShort
	}
	out := make([]common.Address, len(tokens))
	copy(out, tokens)
	return out, nil
}
