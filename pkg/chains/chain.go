package chains

import (
	"context"
	"encoding/json"
	"strings"
)

// Network is the answer of a provider network query
type Network struct {
	ChainID int64
	Name    string
}

// NetworkQuerier answers "which network are you on" directly
type NetworkQuerier interface {
	GetNetwork(ctx context.Context) (*Network, error)
}

// Requester dispatches generic JSON-RPC style requests (EIP-1193 request)
type Requester interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// Subscription is returned by every event registration and removes the listener
// Unsubscribe must be safe to call more than once
type Subscription interface {
	Unsubscribe()
}

// NetworkEvents delivers provider-level "network changed" notifications
type NetworkEvents interface {
	OnNetworkChanged(fn func(newNetwork, oldNetwork *Network)) Subscription
}

// ChainEvents delivers wallet "chainChanged" notifications carrying a hex chain id
type ChainEvents interface {
	OnChainChanged(fn func(chainID string)) Subscription
}

// Injected is the capability surface of a host-injected wallet (a browser extension
// bridged into this process). It replaces a process-wide global: callers pass it
// explicitly to whatever needs it.
type Injected interface {
	Requester
	ChainEvents
}

// Provider is a capability descriptor for a read-mostly connection to a network
// Each field is one optional surface; nil means the surface is not available.
type Provider struct {
	// Name identifies the provider in logs
	Name string

	Network NetworkQuerier
	RPC     Requester
	Events  NetworkEvents

	// ChainIDHint is a raw chain id property exposed by legacy providers
	ChainIDHint any
}

// IsEmpty reports whether the descriptor exposes no surface at all
func (p *Provider) IsEmpty() bool {
	return p == nil || (p.Network == nil && p.RPC == nil && p.Events == nil && p.ChainIDHint == nil)
}

// Signer represents an authorized account able to submit transactions
type Signer interface {
	// Address returns the account address (hex, any case)
	Address(ctx context.Context) (string, error)

	// SendTransaction submits a transaction and returns its hash
	SendTransaction(ctx context.Context, tx *TxRequest) (string, error)
}

// ProviderBacked is an optional interface for signers that carry their provider
// Implemented by: evm.RPCSigner, evm.KeySigner
type ProviderBacked interface {
	Provider() *Provider
}

// TxRequest is a chain-agnostic transaction submission
type TxRequest struct {
	To    string
	Data  []byte
	Value string // wei, decimal; empty means zero
	Gas   uint64 // zero lets the signer estimate
}

// ClientType is the wallet client tag reported by the wallet/auth provider
type ClientType string

const (
	ClientPrivy         ClientType = "privy"
	ClientEmbedded      ClientType = "embedded"
	ClientMetaMask      ClientType = "metamask"
	ClientCoinbase      ClientType = "coinbase_wallet"
	ClientRainbow       ClientType = "rainbow"
	ClientPhantom       ClientType = "phantom"
	ClientBrave         ClientType = "brave_wallet"
	ClientRabby         ClientType = "rabby_wallet"
	ClientWalletConnect ClientType = "wallet_connect"
	ClientUnknown       ClientType = ""
)

var injectedClientTypes = map[ClientType]bool{
	ClientMetaMask: true,
	ClientCoinbase: true,
	ClientRainbow:  true,
	ClientPhantom:  true,
	ClientBrave:    true,
	ClientRabby:    true,
}

// IsEmbedded reports whether the wallet is managed by the auth provider and cannot switch networks
func (c ClientType) IsEmbedded() bool {
	switch ClientType(strings.ToLower(string(c))) {
	case ClientPrivy, ClientEmbedded:
		return true
	}
	return false
}

// IsInjected reports whether the wallet is a recognized browser-injected wallet
func (c ClientType) IsInjected() bool {
	return injectedClientTypes[ClientType(strings.ToLower(string(c)))]
}

// WalletNetwork is the nested network object some wallet records carry
type WalletNetwork struct {
	ChainID any
}

// Wallet is an external wallet descriptor
type Wallet struct {
	Address    string
	ClientType ClientType

	// ChainID is the raw chain id field, in any accepted format
	ChainID any
	Network *WalletNetwork

	// Provider is the wallet's own provider, when it has one
	Provider *Provider

	// GetProvider lazily obtains the provider (e.g. an embedded wallet's ethereum provider)
	GetProvider func(ctx context.Context) (*Provider, error)
}

// HasProvider reports whether the wallet record has a dedicated provider surface
func (w *Wallet) HasProvider() bool {
	return w != nil && (!w.Provider.IsEmpty() || w.GetProvider != nil)
}
