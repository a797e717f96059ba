package wallet

import (
	"log/slog"
	"time"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/chains/evm"
	"github.com/sigweihq/chainsync/pkg/constants"
	"github.com/sigweihq/chainsync/pkg/metrics"
)

// SignerFactory wraps a provider into a signer scoped to address
type SignerFactory func(provider *chains.Provider, address string) (chains.Signer, error)

// Reconciler determines, switches and confirms the chain a wallet is on
// It keeps no per-call state: providers and signers are resolved fresh from the
// candidates given to every call.
type Reconciler struct {
	injected       chains.Injected
	confirmTimeout time.Duration
	probeDelay     time.Duration
	signerFactory  SignerFactory
	logger         *slog.Logger
	metrics        metrics.Recorder
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithInjected supplies the host-injected wallet surface
func WithInjected(injected chains.Injected) Option {
	return func(r *Reconciler) {
		r.injected = injected
	}
}

// WithConfirmTimeout sets the default wait for a switch confirmation event
func WithConfirmTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.confirmTimeout = d
		}
	}
}

// WithProbeDelay sets how long to wait before re-probing when no event surface exists
func WithProbeDelay(d time.Duration) Option {
	return func(r *Reconciler) {
		if d >= 0 {
			r.probeDelay = d
		}
	}
}

// WithSignerFactory replaces the provider-to-signer adapter
func WithSignerFactory(f SignerFactory) Option {
	return func(r *Reconciler) {
		if f != nil {
			r.signerFactory = f
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(r *Reconciler) {
		if recorder != nil {
			r.metrics = recorder
		}
	}
}

// NewReconciler creates a reconciler with the given options
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		confirmTimeout: constants.DefaultConfirmTimeout,
		probeDelay:     constants.DefaultProbeDelay,
		signerFactory:  defaultSignerFactory,
		logger:         slog.Default(),
		metrics:        metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultSignerFactory(provider *chains.Provider, address string) (chains.Signer, error) {
	return evm.NewRPCSigner(provider, address)
}

// Candidates are the handles a caller has on hand; any of them may be nil
type Candidates struct {
	Signer   chains.Signer
	Provider *chains.Provider
	Wallet   *chains.Wallet
}
