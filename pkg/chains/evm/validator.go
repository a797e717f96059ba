package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AddressesEqual compares two EVM addresses
// EVM addresses are case-insensitive due to EIP-55 checksumming
func AddressesEqual(addr1, addr2 string) bool {
	if addr1 == "" || addr2 == "" {
		return false
	}
	return strings.EqualFold(addr1, addr2)
}

// IsHash32 reports whether s is a 0x-prefixed 32-byte hex value (66 characters)
func IsHash32(s string) bool {
	if len(s) != 66 { // 0x + 64 hex chars
		return false
	}
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == 32
}

// NormalizeTransactionHash adds the 0x prefix and validates the length
func NormalizeTransactionHash(txHash string) (string, bool) {
	if txHash == "" {
		return "", false
	}
	if !strings.HasPrefix(txHash, "0x") {
		txHash = "0x" + txHash
	}
	if !IsHash32(txHash) {
		return "", false
	}
	return txHash, true
}
