// Package diagnostics turns failures around chain switching and attestation
// submission into a message for the user plus details for debugging.
package diagnostics

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/types"
)

// DetailedError is implemented by errors that carry diagnostic fields
// Implemented by: wallet.SwitchRequestError, wallet.ChainMismatchError, receipt.WaitFailedError
type DetailedError interface {
	error
	Details() map[string]any
}

// NameLookup resolves a chain id to a human-readable network name
// chains.Registry.ChainName and chains.ChainListSource.ChainName fit.
type NameLookup func(chainID int64) (string, bool)

// Context is what the caller knows when the error happens
type Context struct {
	// RequestedChainID is the chain the action needs; zero if unknown
	RequestedChainID int64

	// ActualChainID is the chain the wallet was detected on; zero if undetermined
	ActualChainID int64

	// ApparentChainID is a weaker hint (e.g. a stale wallet field) used only when
	// the actual chain is undetermined
	ApparentChainID int64

	Schema  string
	Network string

	// Extra is merged into the details as-is
	Extra map[string]any
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

const fallbackMessage = "Something went wrong. Make sure your wallet is on the intended network and try again."

// Build derives a DiagnosticPayload from err and the caller's context
// It never panics; if building fails the fallback message is returned with
// whatever details are safe to read.
func Build(err error, c Context, lookup NameLookup) (payload types.DiagnosticPayload) {
	defer func() {
		if r := recover(); r != nil {
			payload = types.DiagnosticPayload{
				UserMessage: fallbackMessage,
				DiagnosticDetails: map[string]any{
					"message":      safeMessage(err),
					"builderPanic": fmt.Sprint(r),
				},
			}
		}
	}()

	attached := collectDetails(err)

	requested := c.RequestedChainID
	if requested == 0 {
		requested = chainIDField(attached, "requestedChainId")
	}
	actual := c.ActualChainID
	if actual == 0 {
		actual = chainIDField(attached, "actualChainId")
	}
	apparent := c.ApparentChainID
	if apparent == 0 {
		apparent = chainIDField(attached, "newChainId")
	}

	details := make(map[string]any, len(attached)+8)
	for k, v := range attached {
		details[k] = v
	}
	if err != nil {
		details["message"] = err.Error()
		details["name"] = fmt.Sprintf("%T", pkgerrors.Cause(err))
	}
	if requested != 0 {
		details["requestedChainId"] = requested
	}
	if actual != 0 {
		details["actualChainId"] = actual
	}
	if c.Schema != "" {
		details["schema"] = c.Schema
	}
	if c.Network != "" {
		details["network"] = c.Network
	}
	for k, v := range c.Extra {
		details[k] = v
	}
	stack := stackOf(err)
	if stack != "" {
		details["stack"] = stack
	}

	return types.DiagnosticPayload{
		UserMessage:       userMessage(err, requested, actual, apparent, lookup),
		DiagnosticDetails: details,
		Stack:             stack,
	}
}

func userMessage(err error, requested, actual, apparent int64, lookup NameLookup) string {
	name := func(chainID int64) string {
		if lookup != nil {
			if n, ok := lookup(chainID); ok && n != "" {
				return n
			}
		}
		return fmt.Sprintf("chain %d", chainID)
	}

	switch {
	case requested != 0 && actual != 0 && requested != actual:
		return fmt.Sprintf(
			"Your wallet is connected to %s (chain id %d), but this action requires %s (chain id %d). Switch your wallet to %s and try again.",
			name(actual), actual, name(requested), requested, name(requested),
		)
	case requested != 0 && actual == 0 && apparent != 0 && apparent != requested:
		return fmt.Sprintf(
			"This action requires %s (chain id %d). Your wallet appears to be on %s (chain id %d). Switch your wallet to %s and try again.",
			name(requested), requested, name(apparent), apparent, name(requested),
		)
	case requested != 0 && actual == 0:
		return fmt.Sprintf(
			"This action requires %s (chain id %d). Switch your wallet to %s and try again.",
			name(requested), requested, name(requested),
		)
	case err != nil:
		return "Something went wrong: " + err.Error()
	}
	return fallbackMessage
}

// collectDetails merges Details from every error in the chain
// Outer errors win over the errors they wrap. A "stack" field attached by an
// error is dropped; Build fills it from the error's own stack trace.
func collectDetails(err error) map[string]any {
	var layers []map[string]any
	for e := err; e != nil; e = errors.Unwrap(e) {
		if d, ok := e.(DetailedError); ok {
			layers = append(layers, d.Details())
		}
	}

	merged := make(map[string]any)
	for i := len(layers) - 1; i >= 0; i-- {
		for k, v := range layers[i] {
			if k == "stack" {
				continue
			}
			merged[k] = v
		}
	}
	return merged
}

func chainIDField(details map[string]any, key string) int64 {
	id, ok := chains.ParseChainID(details[key])
	if !ok {
		return 0
	}
	return id
}

func stackOf(err error) string {
	var tracer stackTracer
	if errors.As(err, &tracer) {
		return fmt.Sprintf("%+v", tracer.StackTrace())
	}
	return ""
}

func safeMessage(err error) (msg string) {
	defer func() {
		if recover() != nil {
			msg = "unknown error"
		}
	}()
	if err == nil {
		return ""
	}
	return err.Error()
}
