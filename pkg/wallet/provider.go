package wallet

import (
	"context"

	"github.com/sigweihq/chainsync/pkg/chains"
)

// ResolveProvider picks one usable provider from the candidates, in order:
// the signer's own provider, the supplied provider, the wallet's provider field,
// then the wallet's lazy accessor. Failures fall through to the next source.
func (r *Reconciler) ResolveProvider(ctx context.Context, c Candidates) *chains.Provider {
	if backed, ok := c.Signer.(chains.ProviderBacked); ok {
		if p := backed.Provider(); !p.IsEmpty() {
			return p
		}
	}

	if !c.Provider.IsEmpty() {
		return c.Provider
	}

	if c.Wallet == nil {
		return nil
	}

	if !c.Wallet.Provider.IsEmpty() {
		return c.Wallet.Provider
	}

	if c.Wallet.GetProvider != nil {
		p, err := c.Wallet.GetProvider(ctx)
		if err != nil {
			r.logger.Debug("wallet provider accessor failed", "address", c.Wallet.Address, "error", err)
			return nil
		}
		if !p.IsEmpty() {
			return p
		}
	}

	return nil
}
