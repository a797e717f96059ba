package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/sigweihq/chainsync/pkg/metrics"
	"github.com/sigweihq/chainsync/pkg/types"
)

// Transaction is an in-flight transaction handle returned by an attestation client
type Transaction interface {
	// Wait blocks until the transaction is final. The value is either the
	// attestation uid itself or a document containing it.
	Wait(ctx context.Context) (any, error)
}

// Hashed is implemented by transactions that know their own hash
type Hashed interface {
	Hash() string
}

// ReceiptCarrier is implemented by transactions (and wait errors) holding a settled receipt
type ReceiptCarrier interface {
	Receipt() map[string]any
}

// AttestationReader fetches the full attestation record for a uid
type AttestationReader interface {
	GetAttestation(ctx context.Context, uid string) (any, error)
}

// Result is the typed form of a wait result
type Result struct {
	UID     string
	Receipt map[string]any
	Hash    string
}

// Options carries the caller's context for the record
type Options struct {
	Network string
	ChainID int64
}

// uid keys seen on wait results, in priority order
var uidKeys = []string{"uid", "attestationUID", "attestationUid", "attestationId"}

// Normalizer turns a settled transaction into a ReceiptRecord
type Normalizer struct {
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewNormalizer creates a normalizer; nil arguments fall back to defaults
func NewNormalizer(logger *slog.Logger, recorder metrics.Recorder) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Normalizer{logger: logger, metrics: recorder}
}

// Normalize waits for tx and builds its ReceiptRecord
// A failing wait yields a *WaitFailedError (wrapped with a stack trace). The
// attestation lookup through client is an enrichment and its failure is ignored.
func (n *Normalizer) Normalize(ctx context.Context, tx Transaction, client AttestationReader, opts Options) (*types.ReceiptRecord, error) {
	result, err := tx.Wait(ctx)
	if err != nil {
		return nil, newWaitFailedError(err, tx)
	}

	doc := findReceipt(tx, result)
	chain := strconv.FormatInt(opts.ChainID, 10)

	uid := uidFromResult(result)
	if uid == "" && doc != nil {
		var found bool
		uid, found = ScanLogs(doc)
		outcome := "miss"
		if found {
			outcome = "found"
		}
		n.metrics.IncCounter(metrics.ReceiptScan, map[string]string{"chain": chain, "result": outcome})
	}

	record := &types.ReceiptRecord{
		TransactionHash: firstNonEmpty(
			stringField(doc, "transactionHash"),
			stringField(doc, "hash"),
			hashOf(tx),
			resultHash(result),
		),
		AttestationID: uid,
		GasUsed:       FormatGasUsed(field(doc, "gasUsed")),
		Network:       opts.Network,
		ChainID:       opts.ChainID,
	}

	if uid != "" && client != nil {
		attestation, err := client.GetAttestation(ctx, uid)
		if err != nil {
			n.logger.Debug("attestation lookup failed", "uid", uid, "error", err)
			n.metrics.IncCounter(metrics.EnrichmentFailed, map[string]string{"chain": chain})
		} else {
			record.RawAttestation = attestation
		}
	}

	return record, nil
}

// findReceipt looks for the receipt on the transaction handle first, then on the wait result
func findReceipt(tx Transaction, result any) map[string]any {
	if c, ok := tx.(ReceiptCarrier); ok {
		if doc := c.Receipt(); doc != nil {
			return doc
		}
	}

	switch v := result.(type) {
	case Result:
		return v.Receipt
	case *Result:
		if v != nil {
			return v.Receipt
		}
	case map[string]any:
		if doc, ok := v["receipt"].(map[string]any); ok {
			return doc
		}
		if _, ok := v["logs"]; ok {
			return v
		}
		if _, ok := v["transactionHash"]; ok {
			return v
		}
	}
	return nil
}

func uidFromResult(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case Result:
		return v.UID
	case *Result:
		if v != nil {
			return v.UID
		}
	case map[string]any:
		for _, key := range uidKeys {
			if uid := stringField(v, key); uid != "" {
				return uid
			}
		}
	}
	return ""
}

func resultHash(result any) string {
	switch v := result.(type) {
	case Result:
		return v.Hash
	case *Result:
		if v != nil {
			return v.Hash
		}
	case map[string]any:
		return stringField(v, "hash")
	}
	return ""
}

func hashOf(tx Transaction) string {
	if h, ok := tx.(Hashed); ok {
		return h.Hash()
	}
	return ""
}

// FormatGasUsed renders a gas amount of any common shape as a decimal string
// Hex quantities are converted; unknown shapes fall back to their default formatting.
func FormatGasUsed(v any) string {
	switch g := v.(type) {
	case nil:
		return ""
	case string:
		if g == "" {
			return ""
		}
		if strings.HasPrefix(g, "0x") || strings.HasPrefix(g, "0X") {
			if n, err := hexutil.DecodeBig(strings.ToLower(g[:2]) + g[2:]); err == nil {
				return decimal.NewFromBigInt(n, 0).String()
			}
			return g
		}
		if d, err := decimal.NewFromString(g); err == nil {
			return d.String()
		}
		return g
	case float64:
		return decimal.NewFromFloat(g).String()
	case json.Number:
		if d, err := decimal.NewFromString(g.String()); err == nil {
			return d.String()
		}
		return g.String()
	case *big.Int:
		if g == nil {
			return ""
		}
		return decimal.NewFromBigInt(g, 0).String()
	case *hexutil.Big:
		if g == nil {
			return ""
		}
		return decimal.NewFromBigInt(g.ToInt(), 0).String()
	case hexutil.Uint64:
		return strconv.FormatUint(uint64(g), 10)
	case uint64:
		return strconv.FormatUint(g, 10)
	case int64:
		return strconv.FormatInt(g, 10)
	case int:
		return strconv.Itoa(g)
	}
	return fmt.Sprint(v)
}

func field(doc map[string]any, key string) any {
	if doc == nil {
		return nil
	}
	return doc[key]
}

func stringField(doc map[string]any, key string) string {
	s, _ := field(doc, key).(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
