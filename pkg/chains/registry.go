package chains

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sigweihq/chainsync/pkg/constants"
)

// ErrChainNotFound is returned when no metadata is registered for a chain id
var ErrChainNotFound = errors.New("chain not found")

// ChainInfo is the human-facing metadata of one chain
type ChainInfo struct {
	ChainID   int64
	Name      string // human readable name, e.g. "Sepolia"
	Network   string // short network key, e.g. "sepolia"
	Endpoints []string
	EAS       string // EAS contract address, if deployed
}

// Registry manages chain metadata keyed by chain id
type Registry struct {
	chains map[int64]*ChainInfo
	mu     sync.RWMutex
}

var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		chains: make(map[int64]*ChainInfo),
	}
}

// NewDefaultRegistry creates a registry seeded with the well-known networks
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for network, chainID := range constants.NetworkToChainID {
		_ = r.Register(&ChainInfo{
			ChainID:   chainID,
			Name:      network,
			Network:   network,
			Endpoints: constants.OfficialRPCEndpoints[network],
			EAS:       constants.EASContractAddress[network],
		})
	}
	return r
}

// InitGlobalRegistry initializes the global chain registry with the well-known networks
func InitGlobalRegistry() *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewDefaultRegistry()
	})
	return globalRegistry
}

// GetGlobalRegistry returns the global chain registry (returns nil if not initialized)
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// ResetGlobalRegistry resets the global registry (useful for testing)
func ResetGlobalRegistry() {
	globalRegistry = nil
	globalRegistryOnce = sync.Once{}
}

// Register stores chain metadata (uses info.ChainID as key)
// Registering an existing chain merges the new fields over the old ones (idempotent)
func (r *Registry) Register(info *ChainInfo) error {
	if info == nil || info.ChainID <= 0 {
		return fmt.Errorf("invalid chain info: chain id must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.chains[info.ChainID]
	if !ok {
		copied := *info
		r.chains[info.ChainID] = &copied
		return nil
	}

	merged := *existing
	if info.Name != "" {
		merged.Name = info.Name
	}
	if info.Network != "" {
		merged.Network = info.Network
	}
	if len(info.Endpoints) > 0 {
		merged.Endpoints = info.Endpoints
	}
	if info.EAS != "" {
		merged.EAS = info.EAS
	}
	r.chains[info.ChainID] = &merged
	return nil
}

// Get retrieves chain metadata by chain id
func (r *Registry) Get(chainID int64) (*ChainInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.chains[chainID]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrChainNotFound, chainID)
	}

	copied := *info
	return &copied, nil
}

// GetByNetwork retrieves chain metadata by its network key
func (r *Registry) GetByNetwork(network string) (*ChainInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, info := range r.chains {
		if info.Network == network {
			copied := *info
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrChainNotFound, network)
}

// ChainName returns the human readable name of a chain
// Its signature matches the metadata lookup used by the diagnostics builder.
func (r *Registry) ChainName(chainID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.chains[chainID]
	if !exists || info.Name == "" {
		return "", false
	}
	return info.Name, true
}

// GetSupportedChainIDs returns all registered chain ids in ascending order
func (r *Registry) GetSupportedChainIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsSupported checks if a chain is registered
func (r *Registry) IsSupported(chainID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.chains[chainID]
	return exists
}

// Unregister removes a chain (useful for testing)
func (r *Registry) Unregister(chainID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.chains, chainID)
}
