package venue

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var errUnexpectedABIReturn = errors.New("venue: unexpected ABI return shape")

func parseABI(jsonStr string) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(jsonStr))
}
