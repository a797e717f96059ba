package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/chains/evm"
	"github.com/sigweihq/chainsync/pkg/metrics"
	"github.com/sigweihq/chainsync/pkg/types"
)

// rejectingWallet answers wallet_switchEthereumChain with a provider error
func rejectingWallet(code int, message string) *mockInjected {
	return newMockInjected(func(method string, _ []any) (json.RawMessage, error) {
		if method == "wallet_switchEthereumChain" {
			return nil, &evm.ProviderError{Code: code, Message: message}
		}
		return json.Marshal("0x1")
	})
}

func TestRequestSwitch(t *testing.T) {
	t.Run("sends the hex chain id", func(t *testing.T) {
		requester := chainIDRequester("0x1")
		r := NewReconciler()

		err := r.RequestSwitch(context.Background(), 8453, Candidates{Provider: &chains.Provider{RPC: requester}})
		require.NoError(t, err)

		reqs := requester.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "wallet_switchEthereumChain", reqs[0].Method)
		require.Len(t, reqs[0].Params, 1)
		assert.Equal(t, map[string]string{"chainId": "0x2105"}, reqs[0].Params[0])
	})

	t.Run("wraps provider failures", func(t *testing.T) {
		cause := &evm.ProviderError{Code: 4902, Message: "Unrecognized chain ID"}
		requester := &mockRequester{handle: func(string, []any) (json.RawMessage, error) {
			return nil, cause
		}}
		r := NewReconciler()

		err := r.RequestSwitch(context.Background(), 42220, Candidates{Provider: &chains.Provider{RPC: requester}})

		var switchErr *SwitchRequestError
		require.ErrorAs(t, err, &switchErr)
		assert.Equal(t, int64(42220), switchErr.RequestedChainID)
		assert.ErrorIs(t, err, cause)

		code, ok := switchErr.Code()
		require.True(t, ok)
		assert.Equal(t, 4902, code)

		details := switchErr.Details()
		assert.Equal(t, int64(42220), details["requestedChainId"])
		assert.Equal(t, "0xa4ec", details["requestedChainIdHex"])
		assert.Equal(t, 4902, details["code"])
	})

	t.Run("no provider", func(t *testing.T) {
		r := NewReconciler()

		err := r.RequestSwitch(context.Background(), 10, Candidates{})

		var switchErr *SwitchRequestError
		require.ErrorAs(t, err, &switchErr)
		assert.ErrorIs(t, err, ErrNoProvider)
	})

	t.Run("provider without request surface", func(t *testing.T) {
		r := NewReconciler()

		err := r.RequestSwitch(context.Background(), 10, Candidates{Provider: &chains.Provider{ChainIDHint: "0x1"}})

		assert.ErrorIs(t, err, ErrNoProvider)
	})
}

func TestSwitchChain_EmbeddedWallet(t *testing.T) {
	for _, chainID := range []int64{1, 10, 8453, 11155111} {
		injected := newMockInjected(nil)
		requester := chainIDRequester("0x1")
		r := NewReconciler(WithInjected(injected))

		w := &chains.Wallet{
			Address:    "0xabc",
			ClientType: chains.ClientPrivy,
			Provider:   &chains.Provider{RPC: requester},
		}
		result := r.SwitchChain(context.Background(), chainID, Candidates{Wallet: w}, SwitchConfig{})

		assert.Equal(t, types.SwitchResult{Error: types.SwitchEmbeddedWalletUnsupported}, result)
		assert.Empty(t, injected.Requests())
		assert.Empty(t, requester.Requests())
		assert.Equal(t, 0, injected.ListenerCount())
	}
}

func TestSwitchChain_WalletRejections(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected types.SwitchErrorCode
	}{
		{name: "chain not configured", code: 4902, expected: types.SwitchChainNotConfigured},
		{name: "user rejected", code: 4001, expected: types.SwitchUserRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name+" via injected wallet", func(t *testing.T) {
			injected := rejectingWallet(tt.code, "rejected")
			r := NewReconciler(WithInjected(injected))

			start := time.Now()
			result := r.SwitchChain(context.Background(), 42220, Candidates{
				Wallet: &chains.Wallet{ClientType: chains.ClientMetaMask},
			}, SwitchConfig{Timeout: 10 * time.Second})

			assert.Equal(t, types.SwitchResult{Error: tt.expected}, result)
			assert.Less(t, time.Since(start), time.Second)
			assert.Equal(t, 0, injected.ListenerCount())
			assert.Equal(t, 0, injected.Count("eth_chainId"))
		})

		t.Run(tt.name+" via provider", func(t *testing.T) {
			requester := &mockRequester{handle: func(string, []any) (json.RawMessage, error) {
				return nil, &evm.ProviderError{Code: tt.code}
			}}
			r := NewReconciler()

			result := r.SwitchChain(context.Background(), 42220, Candidates{
				Wallet: &chains.Wallet{ClientType: chains.ClientWalletConnect, Provider: &chains.Provider{RPC: requester}},
			}, SwitchConfig{Timeout: 10 * time.Second})

			assert.Equal(t, types.SwitchResult{Error: tt.expected}, result)
			assert.Equal(t, 1, len(requester.Requests()))
		})
	}
}

func TestSwitchChain_OtherErrorsBecomeResults(t *testing.T) {
	injected := rejectingWallet(-32603, "internal wallet error")
	r := NewReconciler(WithInjected(injected))

	result := r.SwitchChain(context.Background(), 10, Candidates{}, SwitchConfig{})

	assert.False(t, result.Success)
	assert.Contains(t, string(result.Error), "internal wallet error")
	assert.Zero(t, result.NewChainID)
	assert.Equal(t, 0, injected.ListenerCount())
}

func TestSwitchChain_NoProvider(t *testing.T) {
	r := NewReconciler()

	result := r.SwitchChain(context.Background(), 10, Candidates{Wallet: &chains.Wallet{Address: "0xabc"}}, SwitchConfig{})

	assert.False(t, result.Success)
	assert.Contains(t, string(result.Error), ErrNoProvider.Error())
}

func TestSwitchChain_EventConfirms(t *testing.T) {
	injected := newMockInjected(nil)
	injected.emitAfter(10*time.Millisecond, "0xa")
	r := NewReconciler(WithInjected(injected))

	var calls atomic.Int32
	var detected atomic.Int64
	result := r.SwitchChain(context.Background(), 10, Candidates{
		Wallet: &chains.Wallet{ClientType: chains.ClientCoinbase},
	}, SwitchConfig{
		Timeout: time.Second,
		OnChainDetected: func(chainID int64) {
			calls.Add(1)
			detected.Store(chainID)
		},
	})

	assert.Equal(t, types.SwitchResult{Success: true, NewChainID: 10}, result)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(10), detected.Load())
	assert.Equal(t, 0, injected.ListenerCount())
	assert.Equal(t, 1, injected.Count("wallet_switchEthereumChain"))
}

func TestSwitchChain_EventDuringRequest(t *testing.T) {
	// the wallet announces the new chain before the switch request resolves
	var injected *mockInjected
	injected = newMockInjected(func(method string, _ []any) (json.RawMessage, error) {
		if method == "wallet_switchEthereumChain" {
			injected.Emit("0x2105")
			return json.RawMessage("null"), nil
		}
		return json.Marshal("0x1")
	})
	r := NewReconciler(WithInjected(injected))

	start := time.Now()
	result := r.SwitchChain(context.Background(), 8453, Candidates{}, SwitchConfig{Timeout: 5 * time.Second})

	assert.Equal(t, types.SwitchResult{Success: true, NewChainID: 8453}, result)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, injected.Count("eth_chainId"))
	assert.Equal(t, 0, injected.ListenerCount())
}

func TestSwitchChain_EventBeforeRejection(t *testing.T) {
	// an event raised while the request fails must not turn into a success
	var injected *mockInjected
	injected = newMockInjected(func(method string, _ []any) (json.RawMessage, error) {
		if method == "wallet_switchEthereumChain" {
			injected.Emit("0xa4ec")
			return nil, &evm.ProviderError{Code: 4001, Message: "User rejected the request."}
		}
		return json.Marshal("0x1")
	})
	r := NewReconciler(WithInjected(injected))

	result := r.SwitchChain(context.Background(), 42220, Candidates{}, SwitchConfig{Timeout: 5 * time.Second})

	assert.Equal(t, types.SwitchResult{Error: types.SwitchUserRejected}, result)
	assert.Equal(t, 0, injected.ListenerCount())
}

func TestSwitchChain_MismatchedEvent(t *testing.T) {
	injected := newMockInjected(nil)
	injected.emitAfter(5*time.Millisecond, "0x1")
	r := NewReconciler(WithInjected(injected))

	var calls atomic.Int32
	result := r.SwitchChain(context.Background(), 10, Candidates{}, SwitchConfig{
		Timeout:         time.Second,
		OnChainDetected: func(int64) { calls.Add(1) },
	})

	assert.Equal(t, types.SwitchResult{NewChainID: 1, Error: types.SwitchTimeoutOrMismatch}, result)
	assert.Zero(t, calls.Load())
	assert.Equal(t, 0, injected.ListenerCount())
}

func TestSwitchChain_Timeout(t *testing.T) {
	injected := newMockInjected(func(method string, _ []any) (json.RawMessage, error) {
		if method == "eth_chainId" {
			return json.Marshal("0x1")
		}
		return json.RawMessage("null"), nil
	})
	r := NewReconciler(WithInjected(injected))

	var calls atomic.Int32
	result := r.SwitchChain(context.Background(), 10, Candidates{}, SwitchConfig{
		Timeout:         30 * time.Millisecond,
		OnChainDetected: func(int64) { calls.Add(1) },
	})

	assert.Equal(t, types.SwitchResult{NewChainID: 1, Error: types.SwitchTimeoutOrMismatch}, result)
	assert.Zero(t, calls.Load())
	assert.Equal(t, 0, injected.ListenerCount())
}

func TestSwitchChain_TimeoutWithSilentSwitch(t *testing.T) {
	// the wallet switched but never emitted chainChanged
	injected := newMockInjected(func(method string, _ []any) (json.RawMessage, error) {
		if method == "eth_chainId" {
			return json.Marshal("0xa")
		}
		return json.RawMessage("null"), nil
	})
	r := NewReconciler(WithInjected(injected))

	var calls atomic.Int32
	result := r.SwitchChain(context.Background(), 10, Candidates{}, SwitchConfig{
		Timeout:         20 * time.Millisecond,
		OnChainDetected: func(int64) { calls.Add(1) },
	})

	assert.Equal(t, types.SwitchResult{Success: true, NewChainID: 10}, result)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, injected.ListenerCount())
}

func TestSwitchChain_ContextCancelled(t *testing.T) {
	injected := newMockInjected(nil)
	r := NewReconciler(WithInjected(injected))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result := r.SwitchChain(ctx, 10, Candidates{}, SwitchConfig{Timeout: 10 * time.Second})

	assert.False(t, result.Success)
	assert.Equal(t, types.SwitchTimeoutOrMismatch, result.Error)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, injected.ListenerCount())
}

func TestSwitchChain_NoEventSurfaceProbes(t *testing.T) {
	var switched atomic.Bool
	requester := &mockRequester{handle: func(method string, _ []any) (json.RawMessage, error) {
		switch method {
		case "wallet_switchEthereumChain":
			switched.Store(true)
			return json.RawMessage("null"), nil
		case "eth_chainId":
			if switched.Load() {
				return json.Marshal("0x2105")
			}
			return json.Marshal("0x1")
		}
		return nil, errors.New("unexpected method")
	}}
	r := NewReconciler(WithProbeDelay(20 * time.Millisecond))

	var calls atomic.Int32
	start := time.Now()
	result := r.SwitchChain(context.Background(), 8453, Candidates{
		Wallet: &chains.Wallet{ClientType: chains.ClientWalletConnect, Provider: &chains.Provider{RPC: requester}},
	}, SwitchConfig{
		Timeout:         10 * time.Second,
		OnChainDetected: func(int64) { calls.Add(1) },
	})

	assert.Equal(t, types.SwitchResult{Success: true, NewChainID: 8453}, result)
	assert.Equal(t, int32(1), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSwitchChain_NoEventSurfaceMismatch(t *testing.T) {
	requester := chainIDRequester("0x1")
	r := NewReconciler(WithProbeDelay(0))

	result := r.SwitchChain(context.Background(), 8453, Candidates{
		Provider: &chains.Provider{RPC: requester},
	}, SwitchConfig{})

	assert.Equal(t, types.SwitchResult{NewChainID: 1, Error: types.SwitchTimeoutOrMismatch}, result)
}

func TestSwitchChain_ProviderEvents(t *testing.T) {
	events := newMockNetworkEvents()
	events.onSubscribe = func(emit func(*chains.Network)) {
		time.Sleep(5 * time.Millisecond)
		emit(&chains.Network{ChainID: 10})
	}
	requester := chainIDRequester("0x1")
	r := NewReconciler()

	result := r.SwitchChain(context.Background(), 10, Candidates{
		Provider: &chains.Provider{RPC: requester, Events: events},
	}, SwitchConfig{Timeout: time.Second})

	assert.Equal(t, types.SwitchResult{Success: true, NewChainID: 10}, result)
	assert.Equal(t, 0, events.ListenerCount())
}

type panickingRequester struct{}

func (panickingRequester) Request(context.Context, string, ...any) (json.RawMessage, error) {
	panic("wallet exploded")
}

func TestSwitchChain_RecoversPanics(t *testing.T) {
	r := NewReconciler()

	var result types.SwitchResult
	require.NotPanics(t, func() {
		result = r.SwitchChain(context.Background(), 10, Candidates{
			Provider: &chains.Provider{RPC: panickingRequester{}},
		}, SwitchConfig{})
	})

	assert.False(t, result.Success)
	assert.Equal(t, types.SwitchErrorCode("wallet exploded"), result.Error)
}

func TestSwitchChain_RecordsMetrics(t *testing.T) {
	recorder := newCountingRecorder()
	injected := rejectingWallet(4001, "User rejected the request.")
	r := NewReconciler(WithInjected(injected), WithMetrics(recorder))

	r.SwitchChain(context.Background(), 10, Candidates{}, SwitchConfig{})

	assert.Equal(t, 1, recorder.counters[metrics.SwitchOutcome])
	assert.Equal(t, 1, recorder.latencies[metrics.SwitchLatency])
	require.NotEmpty(t, recorder.labels)
	assert.Equal(t, map[string]string{"chain": "10", "result": "USER_REJECTED"}, recorder.labels[0])
}

func TestSwitchChain_InjectedWalletEndToEnd(t *testing.T) {
	var current atomic.Value
	current.Store("0x1")

	injected := newMockInjected(func(method string, params []any) (json.RawMessage, error) {
		switch method {
		case "eth_chainId":
			return json.Marshal(current.Load())
		case "wallet_switchEthereumChain":
			current.Store(params[0].(map[string]string)["chainId"])
			return json.RawMessage("null"), nil
		}
		return nil, &evm.ProviderError{Code: 4200, Message: "unsupported method"}
	})
	injected.emitAfter(50*time.Millisecond, "0x2105")
	r := NewReconciler(WithInjected(injected))
	w := &chains.Wallet{Address: "0xabc", ClientType: chains.ClientMetaMask}

	before, ok := r.DetectChain(context.Background(), &chains.Provider{RPC: injected}, w)
	require.True(t, ok)
	require.Equal(t, int64(1), before)

	start := time.Now()
	result := r.SwitchChain(context.Background(), 8453, Candidates{Wallet: w}, SwitchConfig{Timeout: 10 * time.Second})

	assert.Equal(t, types.SwitchResult{Success: true, NewChainID: 8453}, result)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, 0, injected.ListenerCount())
}

func TestEnsureChain(t *testing.T) {
	t.Run("already on the requested chain", func(t *testing.T) {
		injected := newMockInjected(func(method string, _ []any) (json.RawMessage, error) {
			return json.Marshal("0xaa36a7")
		})
		r := NewReconciler(WithInjected(injected))

		err := r.EnsureChain(context.Background(), 11155111, Candidates{}, SwitchConfig{})

		require.NoError(t, err)
		assert.Equal(t, 0, injected.Count("wallet_switchEthereumChain"))
	})

	t.Run("switches when needed", func(t *testing.T) {
		injected := newMockInjected(func(method string, _ []any) (json.RawMessage, error) {
			return json.Marshal("0x1")
		})
		injected.emitAfter(5*time.Millisecond, "0xaa36a7")
		r := NewReconciler(WithInjected(injected))

		err := r.EnsureChain(context.Background(), 11155111, Candidates{}, SwitchConfig{Timeout: time.Second})

		require.NoError(t, err)
		assert.Equal(t, 1, injected.Count("wallet_switchEthereumChain"))
	})

	t.Run("signer provider wins over the injected wallet", func(t *testing.T) {
		injected := newMockInjected(func(method string, _ []any) (json.RawMessage, error) {
			return json.Marshal("0x1")
		})
		node := chainIDRequester("0xaa36a7")
		signer := &mockSigner{address: "0xabc", provider: &chains.Provider{RPC: node}}
		r := NewReconciler(WithInjected(injected))

		err := r.EnsureChain(context.Background(), 11155111, Candidates{Signer: signer}, SwitchConfig{})

		require.NoError(t, err)
		assert.Empty(t, injected.Requests())
		assert.Equal(t, 1, node.Count("eth_chainId"))
	})

	t.Run("reports the mismatch", func(t *testing.T) {
		injected := rejectingWallet(4902, "Unrecognized chain ID")
		r := NewReconciler(WithInjected(injected))

		err := r.EnsureChain(context.Background(), 42220, Candidates{}, SwitchConfig{})

		var mismatch *ChainMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, int64(42220), mismatch.Requested)
		assert.Equal(t, int64(1), mismatch.Actual)
		require.NotNil(t, mismatch.Result)
		assert.Equal(t, types.SwitchChainNotConfigured, mismatch.Result.Error)
		assert.Equal(t, "CHAIN_NOT_CONFIGURED", mismatch.Details()["switchError"])
	})
}
