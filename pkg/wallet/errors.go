package wallet

import (
	"errors"
	"fmt"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/chains/evm"
	"github.com/sigweihq/chainsync/pkg/constants"
	"github.com/sigweihq/chainsync/pkg/types"
)

var (
	// ErrNoWallet is returned when there is no signer and no wallet candidate
	ErrNoWallet = errors.New("no wallet connected")

	// ErrNoProvider is returned when no usable provider could be obtained
	ErrNoProvider = errors.New("no provider available")
)

// SwitchRequestError is a failed wallet_switchEthereumChain request
type SwitchRequestError struct {
	RequestedChainID int64
	Err              error
}

func (e *SwitchRequestError) Error() string {
	return fmt.Sprintf("switch to chain %d failed: %v", e.RequestedChainID, e.Err)
}

func (e *SwitchRequestError) Unwrap() error {
	return e.Err
}

// Code returns the wallet error code of the cause, if it carries one
func (e *SwitchRequestError) Code() (int, bool) {
	return evm.ErrorCode(e.Err)
}

// Details exposes the error to the diagnostics builder
func (e *SwitchRequestError) Details() map[string]any {
	details := map[string]any{
		"requestedChainId":    e.RequestedChainID,
		"requestedChainIdHex": chains.FormatChainID(e.RequestedChainID),
	}
	if e.Err != nil {
		details["cause"] = e.Err.Error()
	}
	if code, ok := e.Code(); ok {
		details["code"] = code
	}
	return details
}

// ChainMismatchError reports that the wallet is not on the chain an action needs
// Actual is zero when the current chain could not be detected.
type ChainMismatchError struct {
	Requested int64
	Actual    int64
	Result    *types.SwitchResult
}

func (e *ChainMismatchError) Error() string {
	if e.Actual == 0 {
		return fmt.Sprintf("wallet is not on chain %d", e.Requested)
	}
	return fmt.Sprintf("wallet is on chain %d, expected chain %d", e.Actual, e.Requested)
}

// Details exposes the error to the diagnostics builder
func (e *ChainMismatchError) Details() map[string]any {
	details := map[string]any{
		"requestedChainId": e.Requested,
	}
	if e.Actual != 0 {
		details["actualChainId"] = e.Actual
	}
	if e.Result != nil {
		details["switchError"] = string(e.Result.Error)
	}
	return details
}

// classifySwitchError maps the wallet error codes that are expected outcomes
func classifySwitchError(err error) (types.SwitchErrorCode, bool) {
	code, ok := evm.ErrorCode(err)
	if !ok {
		return "", false
	}
	switch code {
	case constants.ErrCodeChainNotConfigured:
		return types.SwitchChainNotConfigured, true
	case constants.ErrCodeUserRejected:
		return types.SwitchUserRejected, true
	}
	return "", false
}
