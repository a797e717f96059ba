package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/chains/evm"
	"github.com/sigweihq/chainsync/pkg/config"
	"github.com/sigweihq/chainsync/pkg/diagnostics"
	"github.com/sigweihq/chainsync/pkg/logger"
	"github.com/sigweihq/chainsync/pkg/metrics"
	"github.com/sigweihq/chainsync/pkg/wallet"
)

// app carries what every subcommand needs, built once before the command runs
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	zap      *zap.Logger
	registry *chains.Registry
	clients  map[int64]*evm.RPCClient
	recorder metrics.Recorder
	metrics  *http.Server
	bridge   *evm.BridgeWallet
	out      io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chainsync",
		Short:         "Reconcile a wallet's active chain with the chain an action needs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.init(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newDetectCmd(a),
		newSwitchCmd(a),
		newAttestCmd(a),
		newReceiptCmd(a),
		newChainsCmd(a),
	)
	return root
}

func (a *app) init(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.log, a.zap, err = logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.registry = chains.InitGlobalRegistry()
	a.clients, err = evm.InitEVMChains(a.log, cfg.RPC.ByChainID())
	if err != nil {
		return err
	}

	a.recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		a.recorder = metrics.NewPrometheusRecorder(reg)
		a.serveMetrics(reg)
	}
	return nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	a.metrics = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", "addr", a.cfg.Metrics.Addr, "error", err)
		}
	}()
	a.log.Info("serving metrics", "addr", a.cfg.Metrics.Addr)
}

// close releases what init and reconciler opened
// It is deferred around execution since cobra skips post-run hooks when a command fails.
func (a *app) close() {
	if a.bridge != nil {
		_ = a.bridge.Close()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
	if a.zap != nil {
		_ = a.zap.Sync()
	}
}

// reconciler builds a reconciler, attaching the wallet bridge when one is configured
func (a *app) reconciler(ctx context.Context) (*wallet.Reconciler, error) {
	opts := []wallet.Option{
		wallet.WithConfirmTimeout(a.cfg.Switch.ConfirmTimeout),
		wallet.WithProbeDelay(a.cfg.Switch.ProbeDelay),
		wallet.WithLogger(a.log),
		wallet.WithMetrics(a.recorder),
	}

	if a.cfg.Wallet.BridgeURL != "" && a.bridge == nil {
		bridge, err := evm.DialBridge(ctx, a.cfg.Wallet.BridgeURL, a.log)
		if err != nil {
			return nil, err
		}
		a.bridge = bridge
	}
	if a.bridge != nil {
		opts = append(opts, wallet.WithInjected(a.bridge))
	}
	return wallet.NewReconciler(opts...), nil
}

// rpcClient returns the RPC client of a chain, building one from the registry if needed
func (a *app) rpcClient(chainID int64) (*evm.RPCClient, error) {
	if client, ok := a.clients[chainID]; ok {
		return client, nil
	}
	client, err := evm.NewRPCClientForChain(a.registry, chainID, a.log)
	if err != nil {
		return nil, err
	}
	a.clients[chainID] = client
	return client, nil
}

func (a *app) network(chainID int64) string {
	if info, err := a.registry.Get(chainID); err == nil && info.Network != "" {
		return info.Network
	}
	return chains.CAIP2(chainID)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail prints the diagnostic payload for err and returns err for the exit status
func (a *app) fail(err error, c diagnostics.Context) error {
	payload := diagnostics.Build(err, c, a.registry.ChainName)
	a.log.Debug("command failed", "error", err, "stack", payload.Stack)
	if printErr := a.printJSON(payload); printErr != nil {
		return printErr
	}
	return err
}

func parseChainArg(raw string) (int64, error) {
	id, ok := chains.ParseChainID(raw)
	if !ok {
		return 0, fmt.Errorf("invalid chain id %q", raw)
	}
	return id, nil
}
