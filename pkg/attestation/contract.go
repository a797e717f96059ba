package attestation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/chains/evm"
	"github.com/sigweihq/chainsync/pkg/constants"
	"github.com/sigweihq/chainsync/pkg/receipt"
)

// ErrNoSigner is returned by Attest on a client that was never connected
var ErrNoSigner = errors.New("attestation client has no signer")

// Attestation is an attestation record, as read from the contract or the indexer
type Attestation struct {
	UID            string `json:"uid"`
	Schema         string `json:"schema"`
	Time           uint64 `json:"time"`
	ExpirationTime uint64 `json:"expirationTime"`
	RevocationTime uint64 `json:"revocationTime"`
	RefUID         string `json:"refUID"`
	Recipient      string `json:"recipient"`
	Attester       string `json:"attester"`
	Revocable      bool   `json:"revocable"`
	Data           string `json:"data"`
	TxHash         string `json:"txid,omitempty"`
}

// ReceiptFetcher returns the raw receipt for a hash, or evm.ErrReceiptNotFound while pending
// Implemented by: evm.RPCClient
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash string) (map[string]any, error)
}

// ContractClient talks to an EAS deployment through go-ethereum bindings
type ContractClient struct {
	address      common.Address
	abi          abi.ABI
	contract     *bind.BoundContract
	receipts     ReceiptFetcher
	signer       chains.Signer
	pollInterval time.Duration
	logger       *slog.Logger
}

// Verify ContractClient can enrich receipts
var _ receipt.AttestationReader = (*ContractClient)(nil)

// ContractOption configures a ContractClient
type ContractOption func(*ContractClient)

// WithPollInterval sets how often Tx.Wait polls for the receipt
func WithPollInterval(d time.Duration) ContractOption {
	return func(c *ContractClient) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithLogger(logger *slog.Logger) ContractOption {
	return func(c *ContractClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContractClient binds the EAS contract at address
// caller serves getAttestation; receipts serves Tx.Wait.
func NewContractClient(address string, caller bind.ContractCaller, receipts ReceiptFetcher, opts ...ContractOption) (*ContractClient, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid EAS contract address: %s", address)
	}

	parsed, err := abi.JSON(strings.NewReader(easABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse EAS ABI: %w", err)
	}

	addr := common.HexToAddress(address)
	c := &ContractClient{
		address:      addr,
		abi:          parsed,
		contract:     bind.NewBoundContract(addr, parsed, caller, nil, nil),
		receipts:     receipts,
		pollInterval: constants.ReceiptPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewContractClientForNetwork binds the known EAS deployment of a network
func NewContractClientForNetwork(network string, caller bind.ContractCaller, receipts ReceiptFetcher, opts ...ContractOption) (*ContractClient, error) {
	address, ok := constants.EASContractAddress[network]
	if !ok {
		return nil, fmt.Errorf("no EAS deployment known for network %s", network)
	}
	return NewContractClient(address, caller, receipts, opts...)
}

// Connect returns a copy of the client that submits through signer
func (c *ContractClient) Connect(signer chains.Signer) *ContractClient {
	connected := *c
	connected.signer = signer
	return &connected
}

// Address returns the contract address
func (c *ContractClient) Address() string {
	return c.address.Hex()
}

// Attest submits an attestation and returns the in-flight transaction
func (c *ContractClient) Attest(ctx context.Context, req Request) (*Tx, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}

	if req.Data.Value == nil {
		req.Data.Value = common.Big0
	}
	data, err := c.abi.Pack("attest", req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attest call: %w", err)
	}

	txReq := &chains.TxRequest{To: c.address.Hex(), Data: data}
	if req.Data.Value.Sign() > 0 {
		txReq.Value = req.Data.Value.String()
	}

	hash, err := c.signer.SendTransaction(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("failed to submit attestation: %w", err)
	}

	c.logger.Info("attestation submitted", "txHash", hash, "contract", c.address.Hex())
	return &Tx{hash: hash, client: c}, nil
}

// GetAttestation reads an attestation from the contract
// It returns an *Attestation, typed as any to satisfy receipt.AttestationReader.
func (c *ContractClient) GetAttestation(ctx context.Context, uid string) (any, error) {
	return c.Attestation(ctx, uid)
}

// Attestation reads an attestation from the contract
func (c *ContractClient) Attestation(ctx context.Context, uid string) (*Attestation, error) {
	if !evm.IsHash32(uid) {
		return nil, fmt.Errorf("invalid attestation uid: %s", uid)
	}

	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAttestation", common.HexToHash(uid))
	if err != nil {
		return nil, fmt.Errorf("getAttestation %s: %w", uid, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("getAttestation %s: empty result", uid)
	}

	raw := *abi.ConvertType(out[0], new(contractAttestation)).(*contractAttestation)
	if raw.Uid == ([32]byte{}) {
		return nil, fmt.Errorf("attestation %s not found", uid)
	}
	return raw.toAttestation(), nil
}

// attestedUID decodes the uid from the first Attested log this contract emitted
func (c *ContractClient) attestedUID(doc map[string]any) (string, bool) {
	typed, err := receipt.ToEthReceipt(doc)
	if err != nil {
		c.logger.Debug("receipt not decodable, leaving uid to the log scan", "error", err)
		return "", false
	}

	eventID := c.abi.Events["Attested"].ID
	for _, log := range typed.Logs {
		if log == nil || log.Address != c.address || len(log.Topics) == 0 || log.Topics[0] != eventID {
			continue
		}

		var ev attestedEvent
		if err := c.contract.UnpackLog(&ev, "Attested", *log); err != nil {
			c.logger.Debug("failed to decode Attested log", "error", err)
			continue
		}
		return common.Hash(ev.Uid).Hex(), true
	}
	return "", false
}
