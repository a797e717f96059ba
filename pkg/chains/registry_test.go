package chains

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIdempotent(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(&ChainInfo{ChainID: 11155111, Name: "sepolia", Network: "sepolia"})
	assert.NoError(t, err, "First registration should succeed")

	// Second registration merges over the first
	err = registry.Register(&ChainInfo{ChainID: 11155111, Name: "Sepolia", Endpoints: []string{"https://rpc.sepolia.org"}})
	assert.NoError(t, err, "Second registration should succeed (idempotent)")

	info, err := registry.Get(11155111)
	require.NoError(t, err)
	assert.Equal(t, "Sepolia", info.Name)
	assert.Equal(t, "sepolia", info.Network, "fields missing from the update are kept")
	assert.Equal(t, []string{"https://rpc.sepolia.org"}, info.Endpoints)
}

func TestRegistryRejectsInvalidChain(t *testing.T) {
	registry := NewRegistry()

	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(&ChainInfo{ChainID: 0, Name: "zero"}))
	assert.Empty(t, registry.GetSupportedChainIDs())
}

func TestRegistryConcurrentRegistration(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, registry.Register(&ChainInfo{ChainID: 8453, Name: "base"}))
		}()
	}
	wg.Wait()

	assert.True(t, registry.IsSupported(8453))
}

func TestRegistryLookups(t *testing.T) {
	registry := NewDefaultRegistry()

	name, ok := registry.ChainName(11155111)
	assert.True(t, ok)
	assert.Equal(t, "sepolia", name)

	name, ok = registry.ChainName(42220)
	assert.True(t, ok)
	assert.Equal(t, "celo", name)

	_, ok = registry.ChainName(999999)
	assert.False(t, ok)

	info, err := registry.GetByNetwork("base")
	require.NoError(t, err)
	assert.Equal(t, int64(8453), info.ChainID)
	assert.NotEmpty(t, info.EAS)

	_, err = registry.Get(999999)
	assert.ErrorIs(t, err, ErrChainNotFound)

	ids := registry.GetSupportedChainIDs()
	assert.Equal(t, int64(1), ids[0], "ids are sorted")
}

func TestRegistryUnregister(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&ChainInfo{ChainID: 10, Name: "optimism"}))

	assert.True(t, registry.IsSupported(10))

	registry.Unregister(10)
	assert.False(t, registry.IsSupported(10))
}

func TestGlobalRegistry(t *testing.T) {
	ResetGlobalRegistry()
	defer ResetGlobalRegistry()

	assert.Nil(t, GetGlobalRegistry())

	registry := InitGlobalRegistry()
	assert.Same(t, registry, InitGlobalRegistry())
	assert.Same(t, registry, GetGlobalRegistry())
	assert.True(t, registry.IsSupported(1))
}

func TestClientType(t *testing.T) {
	tests := []struct {
		clientType ClientType
		embedded   bool
		injected   bool
	}{
		{ClientPrivy, true, false},
		{ClientEmbedded, true, false},
		{"Privy", true, false},
		{ClientMetaMask, false, true},
		{ClientCoinbase, false, true},
		{ClientWalletConnect, false, false},
		{ClientUnknown, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.clientType), func(t *testing.T) {
			assert.Equal(t, tt.embedded, tt.clientType.IsEmbedded())
			assert.Equal(t, tt.injected, tt.clientType.IsInjected())
		})
	}
}

func TestProviderIsEmpty(t *testing.T) {
	var nilProvider *Provider
	assert.True(t, nilProvider.IsEmpty())
	assert.True(t, (&Provider{Name: "bare"}).IsEmpty())
	assert.False(t, (&Provider{ChainIDHint: "0x1"}).IsEmpty())

	var nilWallet *Wallet
	assert.False(t, nilWallet.HasProvider())
	assert.False(t, (&Wallet{Provider: &Provider{}}).HasProvider())
	assert.True(t, (&Wallet{Provider: &Provider{ChainIDHint: 1}}).HasProvider())
}
