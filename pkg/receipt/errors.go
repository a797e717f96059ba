package receipt

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// WaitFailedError is returned when waiting for finality fails
// Whatever could still be recovered (receipt, transaction, hash) is attached so
// callers can point the user at the transaction anyway.
type WaitFailedError struct {
	Message     string
	Receipt     map[string]any
	Transaction Transaction
	TxHash      string
	Err         error
}

func (e *WaitFailedError) Error() string {
	if e.TxHash != "" {
		return "wait for transaction " + e.TxHash + " failed: " + e.Message
	}
	return "wait for transaction failed: " + e.Message
}

func (e *WaitFailedError) Unwrap() error {
	return e.Err
}

// Details exposes the error to the diagnostics builder
func (e *WaitFailedError) Details() map[string]any {
	details := map[string]any{
		"message": e.Message,
	}
	if e.TxHash != "" {
		details["txHash"] = e.TxHash
	}
	if e.Receipt != nil {
		details["receipt"] = e.Receipt
	}
	if e.Transaction != nil {
		details["transactionType"] = typeName(e.Transaction)
	}
	return details
}

// newWaitFailedError collects what is known about the transaction at the time
// of failure and captures the call stack.
func newWaitFailedError(cause error, tx Transaction) error {
	e := &WaitFailedError{
		Message:     cause.Error(),
		Transaction: tx,
		Err:         cause,
	}

	var carrier ReceiptCarrier
	if errors.As(cause, &carrier) {
		e.Receipt = carrier.Receipt()
	}
	if e.Receipt == nil {
		if c, ok := tx.(ReceiptCarrier); ok {
			e.Receipt = c.Receipt()
		}
	}

	e.TxHash = firstNonEmpty(
		stringField(e.Receipt, "transactionHash"),
		stringField(e.Receipt, "hash"),
		hashOf(tx),
	)

	return pkgerrors.WithStack(e)
}
