package evm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sigweihq/chainsync/pkg/chains"
)

// InitEVMChains registers user-provided endpoints in the global registry and
// returns one RPC client per chain
// Chains without endpoints fall back to whatever the registry already knows.
func InitEVMChains(logger *slog.Logger, endpoints map[int64][]string) (map[int64]*RPCClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := chains.InitGlobalRegistry()
	clients := make(map[int64]*RPCClient, len(endpoints))

	for chainID, chainEndpoints := range endpoints {
		if len(chainEndpoints) > 0 {
			if err := registry.Register(&chains.ChainInfo{ChainID: chainID, Endpoints: chainEndpoints}); err != nil {
				logger.Warn("failed to register chain", "chainID", chainID, "error", err)
				continue
			}
		}

		client, err := NewRPCClientForChain(registry, chainID, logger)
		if err != nil {
			logger.Warn("no endpoints available for chain", "chainID", chainID, "error", err)
			continue
		}
		clients[chainID] = client
	}

	return clients, nil
}

// NewRPCClientForChain builds an RPC client from the endpoints registered for chainID
func NewRPCClientForChain(registry *chains.Registry, chainID int64, logger *slog.Logger) (*RPCClient, error) {
	info, err := registry.Get(chainID)
	if err != nil {
		return nil, err
	}
	if len(info.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints registered for chain %d", chainID)
	}

	network := info.Network
	if network == "" {
		network = chains.CAIP2(chainID)
	}
	return NewRPCClient(network, chainID, info.Endpoints, logger), nil
}

// RefreshChainMetadata refreshes the registry from a chainlist feed, logging instead of failing
// The registry keeps serving its current contents when the feed is unreachable.
func RefreshChainMetadata(ctx context.Context, logger *slog.Logger, source *chains.ChainListSource) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := source.Refresh(ctx); err != nil {
		logger.Warn("chain metadata refresh failed, using registry defaults", "error", err)
	}
}
