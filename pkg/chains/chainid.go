package chains

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sigweihq/chainsync/pkg/constants"
)

// ParseChainID normalizes a chain id given as an integer, "eip155:N", "0xHEX" or
// a decimal string. It never fails loudly: anything else yields ok == false.
func ParseChainID(v any) (int64, bool) {
	switch id := v.(type) {
	case int:
		return nonNegative(int64(id))
	case int32:
		return nonNegative(int64(id))
	case int64:
		return nonNegative(id)
	case uint:
		return fromUint(uint64(id))
	case uint32:
		return int64(id), true
	case uint64:
		return fromUint(id)
	case hexutil.Uint64:
		return fromUint(uint64(id))
	case float64:
		return fromFloat(id)
	case *big.Int:
		if id == nil || !id.IsInt64() {
			return 0, false
		}
		return nonNegative(id.Int64())
	case *hexutil.Big:
		if id == nil {
			return 0, false
		}
		return ParseChainID(id.ToInt())
	case json.Number:
		return parseChainIDString(string(id))
	case string:
		return parseChainIDString(id)
	}
	return 0, false
}

func parseChainIDString(s string) (int64, bool) {
	// CAIP-2 and CAIP-10 ids carry the reference in the second segment
	if strings.HasPrefix(s, constants.EIP155Namespace+":") {
		return parseUint(strings.Split(s, ":")[1], 10)
	}
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return parseUint(s[2:], 16)
	}
	return parseUint(s, 10)
}

func parseUint(s string, base int) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, base, 63)
	if err != nil {
		return 0, false
	}
	return int64(n), true
}

func nonNegative(n int64) (int64, bool) {
	if n < 0 {
		return 0, false
	}
	return n, true
}

func fromUint(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func fromFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// FormatChainID renders a chain id the way wallets expect it in wallet_switchEthereumChain
func FormatChainID(chainID int64) string {
	return hexutil.EncodeUint64(uint64(chainID))
}

// CAIP2 renders a chain id as a CAIP-2 identifier ("eip155:8453")
func CAIP2(chainID int64) string {
	return constants.EIP155Namespace + ":" + strconv.FormatInt(chainID, 10)
}
