package types

import "fmt"

// SwitchErrorCode enumerates the structured failure outcomes of a chain switch
type SwitchErrorCode string

const (
	SwitchChainNotConfigured        SwitchErrorCode = "CHAIN_NOT_CONFIGURED"
	SwitchUserRejected              SwitchErrorCode = "USER_REJECTED"
	SwitchTimeoutOrMismatch         SwitchErrorCode = "TIMEOUT_OR_MISMATCH"
	SwitchEmbeddedWalletUnsupported SwitchErrorCode = "EMBEDDED_WALLET_UNSUPPORTED"
	SwitchUnknownError              SwitchErrorCode = "UNKNOWN_ERROR"
)

// SwitchResult is the outcome of one switch attempt
// NewChainID is zero when the chain could not be determined
type SwitchResult struct {
	Success    bool            `json:"success"`
	NewChainID int64           `json:"newChainId,omitempty"`
	Error      SwitchErrorCode `json:"error,omitempty"`
}

func (r SwitchResult) String() string {
	if r.Success {
		return fmt.Sprintf("switched to chain %d", r.NewChainID)
	}
	if r.NewChainID != 0 {
		return fmt.Sprintf("switch failed: %s (chain %d)", r.Error, r.NewChainID)
	}
	return fmt.Sprintf("switch failed: %s", r.Error)
}

// ReceiptRecord is the canonical result of a submitted attestation transaction
// Empty strings stand for values that could not be derived
type ReceiptRecord struct {
	TransactionHash string `json:"transactionHash,omitempty"`
	AttestationID   string `json:"attestationId,omitempty"`
	GasUsed         string `json:"gasUsed,omitempty"`
	RawAttestation  any    `json:"rawAttestation,omitempty"`
	Network         string `json:"network"`
	ChainID         int64  `json:"chainId,omitempty"`
}

// DiagnosticPayload pairs a message for the user with details for debugging
type DiagnosticPayload struct {
	UserMessage       string         `json:"userMessage"`
	DiagnosticDetails map[string]any `json:"diagnosticDetails"`
	Stack             string         `json:"stack,omitempty"`
}
