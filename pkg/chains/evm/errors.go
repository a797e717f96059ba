package evm

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPCError represents a transport-level failure against one endpoint
type RPCError struct {
	Endpoint string
	Err      error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error on %s: %v", e.Endpoint, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// ProviderError is an EIP-1193 provider error returned by a wallet
// It satisfies go-ethereum's rpc.Error so codes are read the same way for every provider.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

var _ rpc.Error = (*ProviderError)(nil)
var _ rpc.DataError = (*ProviderError)(nil)

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider error %d", e.Code)
	}
	return e.Message
}

// ErrorCode implements rpc.Error
func (e *ProviderError) ErrorCode() int {
	return e.Code
}

// ErrorData implements rpc.DataError
func (e *ProviderError) ErrorData() interface{} {
	return e.Data
}

// ErrorCode extracts a JSON-RPC/EIP-1193 error code from anywhere in err's chain
func ErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// isDefinitive reports whether err is an answer from the remote side (an error
// object in the response) rather than a transport failure worth retrying elsewhere
func isDefinitive(err error) bool {
	_, ok := ErrorCode(err)
	return ok
}
