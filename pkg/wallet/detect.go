package wallet

import (
	"context"
	"encoding/json"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/constants"
	"github.com/sigweihq/chainsync/pkg/metrics"
)

// Detection strategies, most reliable first
const (
	StrategyNetworkQuery = "network_query"
	StrategyRPC          = "eth_chainId"
	StrategyWallet       = "wallet_field"
	StrategyLegacyHint   = "legacy_hint"
)

// DetectChain determines the chain the provider (or wallet record) is currently on
// Each surface is tried in a fixed order and the first one that yields a chain id
// wins; ok is false when none does.
func (r *Reconciler) DetectChain(ctx context.Context, p *chains.Provider, w *chains.Wallet) (int64, bool) {
	chainID, strategy, ok := r.detect(ctx, p, w)
	if !ok {
		r.logger.Debug("chain detection found no signal")
		r.metrics.IncCounter(metrics.DetectStrategy, map[string]string{"result": "none"})
		return 0, false
	}

	r.logger.Debug("chain detected", "chainID", chainID, "strategy", strategy)
	r.metrics.IncCounter(metrics.DetectStrategy, map[string]string{"result": strategy})
	return chainID, true
}

func (r *Reconciler) detect(ctx context.Context, p *chains.Provider, w *chains.Wallet) (int64, string, bool) {
	if p != nil && p.Network != nil {
		network, err := p.Network.GetNetwork(ctx)
		if err != nil {
			r.logger.Debug("network query failed", "provider", p.Name, "error", err)
		} else if network != nil && network.ChainID > 0 {
			return network.ChainID, StrategyNetworkQuery, true
		}
	}

	if p != nil && p.RPC != nil {
		if chainID, ok := r.requestChainID(ctx, p); ok {
			return chainID, StrategyRPC, true
		}
	}

	if w != nil {
		if chainID, ok := chains.ParseChainID(w.ChainID); ok {
			return chainID, StrategyWallet, true
		}
		if w.Network != nil {
			if chainID, ok := chains.ParseChainID(w.Network.ChainID); ok {
				return chainID, StrategyWallet, true
			}
		}
	}

	if p != nil && p.ChainIDHint != nil {
		if chainID, ok := chains.ParseChainID(p.ChainIDHint); ok {
			return chainID, StrategyLegacyHint, true
		}
	}

	return 0, "", false
}

func (r *Reconciler) requestChainID(ctx context.Context, p *chains.Provider) (int64, bool) {
	raw, err := p.RPC.Request(ctx, constants.MethodChainID)
	if err != nil {
		r.logger.Debug("eth_chainId request failed", "provider", p.Name, "error", err)
		return 0, false
	}

	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		r.logger.Debug("malformed eth_chainId response", "provider", p.Name, "response", string(raw))
		return 0, false
	}
	return chains.ParseChainID(result)
}
