package receipt

import (
	"encoding/json"
	"fmt"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// FromEthReceipt converts a go-ethereum receipt into the generic document Normalize reads
func FromEthReceipt(r *ethtypes.Receipt) (map[string]any, error) {
	if r == nil {
		return nil, nil
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return doc, nil
}

// ToEthReceipt decodes a raw receipt document into go-ethereum's typed receipt
// Some nodes (Base among them) add a blockTimestamp field to logs in a shape the
// typed decoder does not accept, so it is removed first. doc is not modified.
func ToEthReceipt(doc map[string]any) (*ethtypes.Receipt, error) {
	cleaned := make(map[string]any, len(doc))
	for k, v := range doc {
		cleaned[k] = v
	}

	if logs := logEntries(doc["logs"]); logs != nil {
		stripped := make([]any, 0, len(logs))
		for _, log := range logs {
			entry := make(map[string]any, len(log))
			for k, v := range log {
				if k != "blockTimestamp" {
					entry[k] = v
				}
			}
			stripped = append(stripped, entry)
		}
		cleaned["logs"] = stripped
	}

	raw, err := json.Marshal(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}

	var receipt ethtypes.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &receipt, nil
}
