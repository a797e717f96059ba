package attestation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sigweihq/chainsync/pkg/chains/evm"
	"github.com/sigweihq/chainsync/pkg/receipt"
)

// RevertedError is returned by Tx.Wait when the transaction was mined but failed
// It carries the receipt so the hash can still be shown to the user.
type RevertedError struct {
	TxHash  string
	receipt map[string]any
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("transaction %s reverted", e.TxHash)
}

// Receipt implements receipt.ReceiptCarrier
func (e *RevertedError) Receipt() map[string]any {
	return e.receipt
}

// Tx is a submitted attestation transaction
type Tx struct {
	hash   string
	client *ContractClient

	mu      sync.Mutex
	receipt map[string]any
}

// Verify Tx satisfies the normalizer's optional interfaces
var (
	_ receipt.Transaction    = (*Tx)(nil)
	_ receipt.Hashed         = (*Tx)(nil)
	_ receipt.ReceiptCarrier = (*Tx)(nil)
)

// NewTx tracks an already submitted transaction
func NewTx(hash string, client *ContractClient) *Tx {
	return &Tx{hash: hash, client: client}
}

// Hash implements receipt.Hashed
func (t *Tx) Hash() string {
	return t.hash
}

// Receipt implements receipt.ReceiptCarrier; nil until Wait has seen the receipt
func (t *Tx) Receipt() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receipt
}

// Wait polls for the receipt until the transaction is mined or ctx ends
// The result is a receipt.Result; its UID is empty when no Attested log from the
// client's contract could be decoded.
func (t *Tx) Wait(ctx context.Context) (any, error) {
	doc, err := t.poll(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.receipt = doc
	t.mu.Unlock()

	if status, _ := doc["status"].(string); status == "0x0" {
		return nil, &RevertedError{TxHash: t.hash, receipt: doc}
	}

	uid, _ := t.client.attestedUID(doc)
	return receipt.Result{UID: uid, Receipt: doc, Hash: t.hash}, nil
}

func (t *Tx) poll(ctx context.Context) (map[string]any, error) {
	if t.client.receipts == nil {
		return nil, fmt.Errorf("no receipt source to wait for %s", t.hash)
	}

	ticker := time.NewTicker(t.client.pollInterval)
	defer ticker.Stop()

	for {
		doc, err := t.client.receipts.TransactionReceipt(ctx, t.hash)
		switch {
		case err == nil:
			return doc, nil
		case errors.Is(err, evm.ErrReceiptNotFound):
			t.client.logger.Debug("receipt pending", "txHash", t.hash)
		default:
			return nil, fmt.Errorf("failed to fetch receipt for %s: %w", t.hash, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
