package wallet

import (
	"context"
	"fmt"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/chains/evm"
)

// SignerSelection is the signer to use and the wallet record it belongs to
// Wallet is nil when a supplied signer matched none of the candidates.
type SignerSelection struct {
	Signer chains.Signer
	Wallet *chains.Wallet
}

// ResolveSigner picks the signer for a submission
// A supplied signer is used as-is and matched to its wallet by address. Otherwise
// a wallet is chosen (preferring one with a provider) and its provider is wrapped
// into a signer scoped to the wallet's address.
func (r *Reconciler) ResolveSigner(ctx context.Context, wallets []*chains.Wallet, signer chains.Signer, provider *chains.Provider) (*SignerSelection, error) {
	if signer != nil {
		return &SignerSelection{Signer: signer, Wallet: r.matchWallet(ctx, wallets, signer)}, nil
	}

	selected := selectWallet(wallets)
	if selected == nil {
		return nil, ErrNoWallet
	}

	p := r.ResolveProvider(ctx, Candidates{Wallet: selected})
	if p.IsEmpty() {
		p = provider
	}
	if p.IsEmpty() {
		return nil, fmt.Errorf("%w: wallet %s", ErrNoProvider, selected.Address)
	}

	constructed, err := r.signerFactory(p, selected.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet %s: %v", ErrNoProvider, selected.Address, err)
	}

	return &SignerSelection{Signer: constructed, Wallet: selected}, nil
}

// matchWallet finds the wallet whose address the signer reports
// A failing address lookup is not an error; the signer is still usable.
func (r *Reconciler) matchWallet(ctx context.Context, wallets []*chains.Wallet, signer chains.Signer) *chains.Wallet {
	address, err := signer.Address(ctx)
	if err != nil {
		r.logger.Debug("signer address lookup failed", "error", err)
		return nil
	}

	for _, w := range wallets {
		if w != nil && evm.AddressesEqual(w.Address, address) {
			return w
		}
	}
	return nil
}

func selectWallet(wallets []*chains.Wallet) *chains.Wallet {
	var first *chains.Wallet
	for _, w := range wallets {
		if w == nil {
			continue
		}
		if w.HasProvider() {
			return w
		}
		if first == nil {
			first = w
		}
	}
	return first
}
