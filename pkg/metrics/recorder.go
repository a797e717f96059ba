package metrics

import "time"

// Metric names
const (
	SwitchOutcome    = "switch_outcome"
	SwitchLatency    = "switch"
	DetectStrategy   = "detect_strategy"
	ReceiptScan      = "receipt_log_scan"
	EnrichmentFailed = "attestation_enrichment_failed"
)

// Recorder receives counters and latencies from the reconciliation code
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
