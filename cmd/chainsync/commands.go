package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/sigweihq/chainsync/pkg/attestation"
	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/chains/evm"
	"github.com/sigweihq/chainsync/pkg/diagnostics"
	"github.com/sigweihq/chainsync/pkg/receipt"
	"github.com/sigweihq/chainsync/pkg/wallet"
)

// walletFlags describe the connected wallet record
type walletFlags struct {
	client  string
	address string
}

func (f *walletFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.client, "client", string(chains.ClientMetaMask), "wallet client type (metamask, privy, ...)")
	cmd.Flags().StringVar(&f.address, "address", "", "wallet address")
}

// candidates describes the wallet behind the bridge, or an RPC node when no bridge is configured
func (a *app) candidates(f walletFlags, rpcChainID int64) (wallet.Candidates, error) {
	w := &chains.Wallet{Address: f.address, ClientType: chains.ClientType(f.client)}
	if a.bridge != nil {
		w.Provider = a.bridge.Provider()
		return wallet.Candidates{Wallet: w}, nil
	}
	if rpcChainID != 0 {
		client, err := a.rpcClient(rpcChainID)
		if err != nil {
			return wallet.Candidates{}, err
		}
		return wallet.Candidates{Provider: client.Provider(), Wallet: w}, nil
	}
	return wallet.Candidates{Wallet: w}, nil
}

func newDetectCmd(a *app) *cobra.Command {
	var wf walletFlags
	var rpcChain string

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect the chain the wallet is currently on",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var rpcChainID int64
			if rpcChain != "" {
				id, err := parseChainArg(rpcChain)
				if err != nil {
					return err
				}
				rpcChainID = id
			}

			r, err := a.reconciler(ctx)
			if err != nil {
				return a.fail(err, diagnostics.Context{})
			}
			c, err := a.candidates(wf, rpcChainID)
			if err != nil {
				return a.fail(err, diagnostics.Context{})
			}

			chainID, ok := r.DetectChain(ctx, r.ResolveProvider(ctx, c), c.Wallet)
			if !ok {
				return errors.New("could not detect the current chain")
			}

			name, _ := a.registry.ChainName(chainID)
			return a.printJSON(map[string]any{
				"chainId": chainID,
				"hex":     chains.FormatChainID(chainID),
				"caip2":   chains.CAIP2(chainID),
				"name":    name,
			})
		},
	}
	wf.register(cmd)
	cmd.Flags().StringVar(&rpcChain, "rpc-chain", "", "query this chain's RPC endpoints when no wallet bridge is configured")
	return cmd
}

func newSwitchCmd(a *app) *cobra.Command {
	var wf walletFlags

	cmd := &cobra.Command{
		Use:   "switch <chain-id>",
		Short: "Ask the wallet to switch chains and wait for confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			chainID, err := parseChainArg(args[0])
			if err != nil {
				return err
			}

			r, err := a.reconciler(ctx)
			if err != nil {
				return a.fail(err, diagnostics.Context{RequestedChainID: chainID})
			}
			c, err := a.candidates(wf, 0)
			if err != nil {
				return a.fail(err, diagnostics.Context{RequestedChainID: chainID})
			}

			result := r.SwitchChain(ctx, chainID, c, wallet.SwitchConfig{
				Timeout: a.cfg.Switch.ConfirmTimeout,
				OnChainDetected: func(id int64) {
					a.log.Info("wallet reported chain", "chainID", id)
				},
			})
			if result.Success {
				return a.printJSON(result)
			}

			mismatch := &wallet.ChainMismatchError{Requested: chainID, Actual: result.NewChainID, Result: &result}
			return a.fail(mismatch, diagnostics.Context{
				RequestedChainID: chainID,
				ActualChainID:    result.NewChainID,
				Network:          a.network(chainID),
			})
		},
	}
	wf.register(cmd)
	return cmd
}

// attestationClients returns an ethclient for chainID plus the EAS client on it
// The caller closes the ethclient.
func (a *app) attestationClients(ctx context.Context, chainID int64) (*evm.RPCClient, *ethclient.Client, *attestation.ContractClient, error) {
	rpcClient, err := a.rpcClient(chainID)
	if err != nil {
		return nil, nil, nil, err
	}
	eth, err := rpcClient.Dial(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []attestation.ContractOption{attestation.WithLogger(a.log)}
	var contract *attestation.ContractClient
	switch info, lookupErr := a.registry.Get(chainID); {
	case a.cfg.Attestation.Contract != "":
		contract, err = attestation.NewContractClient(a.cfg.Attestation.Contract, eth, rpcClient, opts...)
	case lookupErr == nil && info.EAS != "":
		contract, err = attestation.NewContractClient(info.EAS, eth, rpcClient, opts...)
	default:
		contract, err = attestation.NewContractClientForNetwork(a.network(chainID), eth, rpcClient, opts...)
	}
	if err != nil {
		eth.Close()
		return nil, nil, nil, err
	}
	return rpcClient, eth, contract, nil
}

// attestationReader prefers the GraphQL indexer and falls back to the contract
func (a *app) attestationReader(chainID int64, contract *attestation.ContractClient) receipt.AttestationReader {
	var (
		indexer *attestation.IndexerClient
		err     error
	)
	if a.cfg.Attestation.IndexerURL != "" {
		indexer, err = attestation.NewIndexerClient(a.cfg.Attestation.IndexerURL, nil)
	} else {
		indexer, err = attestation.NewIndexerClientForNetwork(a.network(chainID), nil)
	}
	if err != nil {
		a.log.Debug("no attestation indexer, reading from contract", "chainID", chainID, "error", err)
		return contract
	}
	return indexer
}

func newAttestCmd(a *app) *cobra.Command {
	var (
		wf        walletFlags
		chain     string
		schema    string
		recipient string
		data      string
		refUID    string
		revocable bool
		wait      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "attest",
		Short: "Submit an attestation on a chain, switching the wallet first if needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			chainID, err := parseChainArg(chain)
			if err != nil {
				return err
			}
			diag := diagnostics.Context{RequestedChainID: chainID, Schema: schema, Network: a.network(chainID)}

			req, err := buildRequest(schema, recipient, data, refUID, revocable)
			if err != nil {
				return err
			}

			r, err := a.reconciler(ctx)
			if err != nil {
				return a.fail(err, diag)
			}

			rpcClient, eth, contract, err := a.attestationClients(ctx, chainID)
			if err != nil {
				return a.fail(err, diag)
			}
			defer eth.Close()

			var signer chains.Signer
			var wallets []*chains.Wallet
			if a.cfg.Wallet.PrivateKey != "" {
				signer, err = evm.NewKeySigner(a.cfg.Wallet.PrivateKey, chainID, eth, rpcClient.Provider())
				if err != nil {
					return a.fail(err, diag)
				}
			} else {
				c, err := a.candidates(wf, 0)
				if err != nil {
					return a.fail(err, diag)
				}
				wallets = append(wallets, c.Wallet)
			}

			selection, err := r.ResolveSigner(ctx, wallets, signer, nil)
			if err != nil {
				return a.fail(err, diag)
			}

			candidates := wallet.Candidates{Signer: selection.Signer, Wallet: selection.Wallet}
			if err := r.EnsureChain(ctx, chainID, candidates, wallet.SwitchConfig{Timeout: a.cfg.Switch.ConfirmTimeout}); err != nil {
				var mismatch *wallet.ChainMismatchError
				if errors.As(err, &mismatch) {
					diag.ActualChainID = mismatch.Actual
				}
				return a.fail(err, diag)
			}

			tx, err := contract.Connect(selection.Signer).Attest(ctx, req)
			if err != nil {
				return a.fail(err, diag)
			}
			a.log.Info("attestation submitted", "txHash", tx.Hash(), "chainID", chainID)

			waitCtx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()

			record, err := receipt.NewNormalizer(a.log, a.recorder).Normalize(waitCtx, tx, contract, receipt.Options{
				Network: a.network(chainID),
				ChainID: chainID,
			})
			if err != nil {
				return a.fail(err, diag)
			}
			return a.printJSON(record)
		},
	}
	wf.register(cmd)
	cmd.Flags().StringVar(&chain, "chain", "", "chain id to attest on (decimal, 0x-hex or eip155:<n>)")
	cmd.Flags().StringVar(&schema, "schema", "", "schema uid")
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient address")
	cmd.Flags().StringVar(&data, "data", "0x", "ABI-encoded attestation data")
	cmd.Flags().StringVar(&refUID, "ref", "", "referenced attestation uid")
	cmd.Flags().BoolVar(&revocable, "revocable", true, "whether the attestation can be revoked")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "how long to wait for the transaction to be mined")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func buildRequest(schema, recipient, data, refUID string, revocable bool) (attestation.Request, error) {
	if !evm.IsHash32(schema) {
		return attestation.Request{}, fmt.Errorf("invalid schema uid %q", schema)
	}
	if recipient != "" && !common.IsHexAddress(recipient) {
		return attestation.Request{}, fmt.Errorf("invalid recipient %q", recipient)
	}
	if refUID != "" && !evm.IsHash32(refUID) {
		return attestation.Request{}, fmt.Errorf("invalid ref uid %q", refUID)
	}
	payload, err := hexutil.Decode(data)
	if err != nil {
		return attestation.Request{}, fmt.Errorf("invalid data: %w", err)
	}

	return attestation.Request{
		Schema: common.HexToHash(schema),
		Data: attestation.RequestData{
			Recipient: common.HexToAddress(recipient),
			Revocable: revocable,
			RefUID:    common.HexToHash(refUID),
			Data:      payload,
		},
	}, nil
}

func newReceiptCmd(a *app) *cobra.Command {
	var (
		chain string
		wait  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "receipt <tx-hash>",
		Short: "Wait for an attestation transaction and print its normalized receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hash, ok := evm.NormalizeTransactionHash(args[0])
			if !ok {
				return fmt.Errorf("invalid transaction hash %q", args[0])
			}
			chainID, err := parseChainArg(chain)
			if err != nil {
				return err
			}
			diag := diagnostics.Context{RequestedChainID: chainID, Network: a.network(chainID), Extra: map[string]any{"txHash": hash}}

			_, eth, contract, err := a.attestationClients(ctx, chainID)
			if err != nil {
				return a.fail(err, diag)
			}
			defer eth.Close()

			waitCtx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()

			record, err := receipt.NewNormalizer(a.log, a.recorder).Normalize(
				waitCtx,
				attestation.NewTx(hash, contract),
				a.attestationReader(chainID, contract),
				receipt.Options{Network: a.network(chainID), ChainID: chainID},
			)
			if err != nil {
				return a.fail(err, diag)
			}
			return a.printJSON(record)
		},
	}
	cmd.Flags().StringVar(&chain, "chain", "", "chain the transaction was sent on")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "how long to wait for the transaction to be mined")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func newChainsCmd(a *app) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "chains",
		Short: "List known chains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if refresh {
				source := chains.NewChainListSource(a.cfg.Chainlist.URL, a.cfg.Chainlist.TTL, a.registry, a.log)
				evm.RefreshChainMetadata(cmd.Context(), a.log, source)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHAIN ID\tHEX\tNAME\tEAS\tENDPOINTS")
			for _, id := range a.registry.GetSupportedChainIDs() {
				info, err := a.registry.Get(id)
				if err != nil {
					continue
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", id, chains.FormatChainID(id), info.Name, info.EAS, len(info.Endpoints))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh chain metadata from the chainlist feed first")
	return cmd
}
