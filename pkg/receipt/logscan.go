package receipt

import (
	"regexp"
	"strings"

	"github.com/sigweihq/chainsync/pkg/chains/evm"
)

var hex32Pattern = regexp.MustCompile(`[0-9a-fA-F]{64}`)

// ScanLogs looks through a receipt's logs for a 32-byte value to use as the
// attestation uid. For each log, in order, the second topic is taken when it is a
// full 32-byte hex word; otherwise the first 64-digit hex run in data is used.
//
// Known limitation: the first match across all logs wins. A transaction that
// emits several attestations (or other events with 32-byte topics before the
// attestation event) yields only that first value.
func ScanLogs(doc map[string]any) (string, bool) {
	for _, log := range logEntries(field(doc, "logs")) {
		if topics := stringSlice(log["topics"]); len(topics) > 1 && evm.IsHash32(topics[1]) {
			return topics[1], true
		}

		if data, ok := log["data"].(string); ok {
			if match := hex32Pattern.FindString(strings.TrimPrefix(data, "0x")); match != "" {
				return "0x" + match, true
			}
		}
	}
	return "", false
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, _ := item.(string)
			out = append(out, str)
		}
		return out
	}
	return nil
}

func logEntries(v any) []map[string]any {
	switch logs := v.(type) {
	case []map[string]any:
		return logs
	case []any:
		out := make([]map[string]any, 0, len(logs))
		for _, entry := range logs {
			if log, ok := entry.(map[string]any); ok {
				out = append(out, log)
			}
		}
		return out
	}
	return nil
}
