package wallet

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/constants"
	"github.com/sigweihq/chainsync/pkg/metrics"
	"github.com/sigweihq/chainsync/pkg/types"
)

// SwitchConfig configures one SwitchChain call
type SwitchConfig struct {
	// Timeout bounds the confirmation wait; zero uses the reconciler default
	Timeout time.Duration

	// OnChainDetected is called once with the new chain id after a confirmed switch
	OnChainDetected func(chainID int64)
}

// RequestSwitch asks the resolved provider to switch to chainID
// Every failure is returned as a *SwitchRequestError.
func (r *Reconciler) RequestSwitch(ctx context.Context, chainID int64, c Candidates) error {
	p := r.ResolveProvider(ctx, c)
	if p == nil || p.RPC == nil {
		return &SwitchRequestError{RequestedChainID: chainID, Err: ErrNoProvider}
	}
	return r.sendSwitch(ctx, p.RPC, chainID)
}

func (r *Reconciler) sendSwitch(ctx context.Context, requester chains.Requester, chainID int64) error {
	params := map[string]string{"chainId": chains.FormatChainID(chainID)}
	if _, err := requester.Request(ctx, constants.MethodSwitchChain, params); err != nil {
		return &SwitchRequestError{RequestedChainID: chainID, Err: err}
	}
	return nil
}

// SwitchChain requests a switch to chainID and confirms it took effect
// It never panics and never returns an error: every outcome, including
// unexpected failures, is reported in the result.
//
//	Idle -> RequestSent -> {Confirmed | TimedOut | Rejected | Unsupported | NoProvider} -> Done
func (r *Reconciler) SwitchChain(ctx context.Context, chainID int64, c Candidates, cfg SwitchConfig) (result types.SwitchResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("chain switch panicked", "chainID", chainID, "panic", rec)
			result = types.SwitchResult{Error: failureCode(fmt.Errorf("%v", rec))}
		}
		r.recordSwitch(chainID, result, time.Since(start))
	}()

	if c.Wallet != nil && c.Wallet.ClientType.IsEmbedded() {
		r.logger.Info("embedded wallet cannot switch chains", "chainID", chainID, "clientType", c.Wallet.ClientType)
		return types.SwitchResult{Error: types.SwitchEmbeddedWalletUnsupported}
	}

	viaInjected := r.usesInjected(ctx, c)

	// wallets may emit chainChanged before the switch request resolves
	watch := r.watchChain(r.ResolveProvider(ctx, c))
	defer watch.stop()

	var err error
	if viaInjected {
		err = r.sendSwitch(ctx, r.injected, chainID)
	} else {
		err = r.RequestSwitch(ctx, chainID, c)
	}
	if err != nil {
		if code, ok := classifySwitchError(err); ok {
			r.logger.Info("wallet declined chain switch", "chainID", chainID, "reason", code)
			return types.SwitchResult{Error: code}
		}
		r.logger.Error("chain switch request failed", "chainID", chainID, "error", err)
		return types.SwitchResult{Error: failureCode(err)}
	}

	return r.awaitSwitch(ctx, chainID, c, cfg, viaInjected, watch)
}

// awaitSwitch confirms a sent switch request by event, falling back to an active probe
func (r *Reconciler) awaitSwitch(ctx context.Context, chainID int64, c Candidates, cfg SwitchConfig, viaInjected bool, watch *chainWatch) types.SwitchResult {
	observed, fired := watch.wait(ctx, r.waitTimeout(cfg.Timeout))
	if fired {
		if observed == chainID {
			return r.confirmed(chainID, cfg)
		}
		r.logger.Info("wallet reported a different chain", "requested", chainID, "actual", observed)
		return types.SwitchResult{NewChainID: observed, Error: types.SwitchTimeoutOrMismatch}
	}

	if !watch.attached && !sleepContext(ctx, r.probeDelay) {
		return types.SwitchResult{Error: types.SwitchTimeoutOrMismatch}
	}

	detected, ok := r.DetectChain(ctx, r.probeProvider(ctx, c, viaInjected), c.Wallet)
	if ok && detected == chainID {
		return r.confirmed(chainID, cfg)
	}

	r.logger.Info("chain switch not confirmed", "requested", chainID, "detected", detected, "eventSurface", watch.attached)
	return types.SwitchResult{NewChainID: detected, Error: types.SwitchTimeoutOrMismatch}
}

func (r *Reconciler) confirmed(chainID int64, cfg SwitchConfig) types.SwitchResult {
	r.logger.Info("chain switch confirmed", "chainID", chainID)
	if cfg.OnChainDetected != nil {
		cfg.OnChainDetected(chainID)
	}
	return types.SwitchResult{Success: true, NewChainID: chainID}
}

// EnsureChain makes sure the wallet is on chainID, switching only when needed
// On failure it returns a *ChainMismatchError carrying the switch result.
func (r *Reconciler) EnsureChain(ctx context.Context, chainID int64, c Candidates, cfg SwitchConfig) error {
	current, detected := r.DetectChain(ctx, r.probeProvider(ctx, c, r.usesInjected(ctx, c)), c.Wallet)
	if detected && current == chainID {
		return nil
	}

	result := r.SwitchChain(ctx, chainID, c, cfg)
	if result.Success {
		return nil
	}

	actual := result.NewChainID
	if actual == 0 && detected {
		actual = current
	}
	return &ChainMismatchError{Requested: chainID, Actual: actual, Result: &result}
}

// usesInjected reports whether a switch for c goes through the injected wallet
// Without a wallet record, a signer or provider given directly takes precedence.
func (r *Reconciler) usesInjected(ctx context.Context, c Candidates) bool {
	if r.injected == nil {
		return false
	}
	if c.Wallet == nil {
		return r.ResolveProvider(ctx, c) == nil
	}
	return c.Wallet.ClientType.IsInjected() || !c.Wallet.HasProvider()
}

// probeProvider picks the provider to detect the chain with
func (r *Reconciler) probeProvider(ctx context.Context, c Candidates, preferInjected bool) *chains.Provider {
	if preferInjected && r.injected != nil {
		return &chains.Provider{Name: "injected", RPC: r.injected}
	}
	if p := r.ResolveProvider(ctx, c); p != nil {
		return p
	}
	if r.injected != nil {
		return &chains.Provider{Name: "injected", RPC: r.injected}
	}
	return nil
}

func (r *Reconciler) recordSwitch(chainID int64, result types.SwitchResult, elapsed time.Duration) {
	outcome := "success"
	if !result.Success {
		outcome = string(result.Error)
		switch result.Error {
		case types.SwitchChainNotConfigured, types.SwitchUserRejected,
			types.SwitchTimeoutOrMismatch, types.SwitchEmbeddedWalletUnsupported:
		default:
			// free-form messages would explode label cardinality
			outcome = "error"
		}
	}

	labels := map[string]string{"chain": strconv.FormatInt(chainID, 10), "result": outcome}
	r.metrics.IncCounter(metrics.SwitchOutcome, labels)
	r.metrics.ObserveLatency(metrics.SwitchLatency, elapsed, labels)
}

func failureCode(err error) types.SwitchErrorCode {
	if err == nil || err.Error() == "" {
		return types.SwitchUnknownError
	}
	return types.SwitchErrorCode(err.Error())
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
