package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/constants"
)

// RPCSigner turns any provider with request dispatch into a signer scoped to one
// account. Signing happens in the wallet behind the provider (eth_sendTransaction).
type RPCSigner struct {
	provider *chains.Provider
	address  string
}

// Verify RPCSigner implements all interfaces
var _ chains.Signer = (*RPCSigner)(nil)
var _ chains.ProviderBacked = (*RPCSigner)(nil)

// NewRPCSigner wraps provider as a signer for address
// An empty address means "the first account the wallet exposes".
func NewRPCSigner(provider *chains.Provider, address string) (*RPCSigner, error) {
	if provider == nil || provider.RPC == nil {
		return nil, fmt.Errorf("provider does not support request dispatch")
	}
	return &RPCSigner{provider: provider, address: address}, nil
}

// Provider implements chains.ProviderBacked
func (s *RPCSigner) Provider() *chains.Provider {
	return s.provider
}

// Address implements chains.Signer
func (s *RPCSigner) Address(ctx context.Context) (string, error) {
	if s.address != "" {
		return s.address, nil
	}

	raw, err := s.provider.RPC.Request(ctx, constants.MethodAccounts)
	if err != nil {
		return "", fmt.Errorf("failed to list accounts: %w", err)
	}

	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return "", fmt.Errorf("failed to decode accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("wallet exposes no accounts")
	}
	return accounts[0], nil
}

// SendTransaction implements chains.Signer
func (s *RPCSigner) SendTransaction(ctx context.Context, tx *chains.TxRequest) (string, error) {
	from, err := s.Address(ctx)
	if err != nil {
		return "", err
	}

	call := map[string]any{
		"from": from,
		"to":   tx.To,
	}
	if len(tx.Data) > 0 {
		call["data"] = hexutil.Encode(tx.Data)
	}
	if tx.Value != "" {
		value, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			return "", fmt.Errorf("invalid transaction value: %s", tx.Value)
		}
		call["value"] = hexutil.EncodeBig(value)
	}
	if tx.Gas > 0 {
		call["gas"] = hexutil.EncodeUint64(tx.Gas)
	}

	raw, err := s.provider.RPC.Request(ctx, constants.MethodSendTransaction, call)
	if err != nil {
		return "", err
	}

	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", fmt.Errorf("failed to decode transaction hash: %w", err)
	}
	return hash, nil
}

// KeySigner signs locally with a private key and submits through a go-ethereum backend
type KeySigner struct {
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	backend  bind.ContractBackend
	provider *chains.Provider
}

var _ chains.Signer = (*KeySigner)(nil)
var _ chains.ProviderBacked = (*KeySigner)(nil)

// NewKeySigner creates a signer from a hex private key (with or without 0x)
// provider is the descriptor of the network the backend talks to and may be nil.
func NewKeySigner(privateKeyHex string, chainID int64, backend bind.ContractBackend, provider *chains.Provider) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeySigner{
		key:      key,
		chainID:  big.NewInt(chainID),
		backend:  backend,
		provider: provider,
	}, nil
}

// Provider implements chains.ProviderBacked
func (s *KeySigner) Provider() *chains.Provider {
	return s.provider
}

// Address implements chains.Signer
func (s *KeySigner) Address(_ context.Context) (string, error) {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex(), nil
}

// SendTransaction implements chains.Signer
// Nonce, fees and gas limit are filled in by bind when not provided.
func (s *KeySigner) SendTransaction(ctx context.Context, tx *chains.TxRequest) (string, error) {
	if s.backend == nil {
		return "", fmt.Errorf("key signer has no backend")
	}

	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return "", fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = tx.Gas
	if tx.Value != "" {
		value, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			return "", fmt.Errorf("invalid transaction value: %s", tx.Value)
		}
		opts.Value = value
	}

	contract := bind.NewBoundContract(common.HexToAddress(tx.To), abi.ABI{}, s.backend, s.backend, s.backend)
	signed, err := contract.RawTransact(opts, tx.Data)
	if err != nil {
		return "", fmt.Errorf("failed to submit transaction: %w", err)
	}

	return signed.Hash().Hex(), nil
}
