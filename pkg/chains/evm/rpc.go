package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/constants"
)

// ErrReceiptNotFound is returned while a transaction is still pending
var ErrReceiptNotFound = errors.New("receipt not found")

// RPCClient is a JSON-RPC provider over one or more endpoints of the same chain
// It implements chains.NetworkQuerier and chains.Requester with endpoint failover.
type RPCClient struct {
	network   string
	chainID   int64
	endpoints []string
	logger    *slog.Logger
}

// NewRPCClient creates a new EVM RPC client
func NewRPCClient(network string, chainID int64, endpoints []string, logger *slog.Logger) *RPCClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCClient{
		network:   network,
		chainID:   chainID,
		endpoints: endpoints,
		logger:    logger,
	}
}

// Verify RPCClient implements both capabilities
var _ chains.NetworkQuerier = (*RPCClient)(nil)
var _ chains.Requester = (*RPCClient)(nil)

// Provider returns the capability descriptor for this client
func (r *RPCClient) Provider() *chains.Provider {
	return &chains.Provider{
		Name:    "rpc:" + r.network,
		Network: r,
		RPC:     r,
	}
}

// Request implements chains.Requester
// Uses random start position for load balancing across RPC endpoints. An error
// object returned by a node is final; only transport failures move on to the next endpoint.
func (r *RPCClient) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := r.withClient(ctx, func(ctx context.Context, client *rpc.Client) error {
		return client.CallContext(ctx, &raw, method, params...)
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// GetNetwork implements chains.NetworkQuerier
func (r *RPCClient) GetNetwork(ctx context.Context) (*chains.Network, error) {
	var network *chains.Network
	err := r.withClient(ctx, func(ctx context.Context, client *rpc.Client) error {
		id, err := ethclient.NewClient(client).ChainID(ctx)
		if err != nil {
			return err
		}
		chainID, ok := chains.ParseChainID(id)
		if !ok {
			return fmt.Errorf("chain id out of range: %s", id)
		}
		network = &chains.Network{ChainID: chainID, Name: r.network}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return network, nil
}

// TransactionReceipt fetches the raw receipt document for a transaction hash
// The document is returned as decoded JSON so callers can read fields that
// go-ethereum's typed receipt would reject or drop.
func (r *RPCClient) TransactionReceipt(ctx context.Context, txHash string) (map[string]any, error) {
	raw, err := r.Request(ctx, constants.MethodTransactionReceipt, common.HexToHash(txHash))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrReceiptNotFound
	}

	var receipt map[string]any
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return receipt, nil
}

// Dial returns a go-ethereum client on the first healthy endpoint
// The caller owns the client and must Close it.
func (r *RPCClient) Dial(ctx context.Context) (*ethclient.Client, error) {
	var lastErr error
	for _, endpoint := range r.endpoints {
		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			lastErr = &RPCError{Endpoint: endpoint, Err: err}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, constants.RPCCallTimeout)
		_, err = client.ChainID(callCtx)
		cancel()
		if err == nil {
			return client, nil
		}
		client.Close()
		lastErr = &RPCError{Endpoint: endpoint, Err: err}
	}
	if lastErr == nil {
		return nil, fmt.Errorf("no RPC endpoints available for network %s", r.network)
	}
	return nil, fmt.Errorf("failed to dial network %s: %w", r.network, lastErr)
}

// ChainID returns the chain the client was configured for
func (r *RPCClient) ChainID() int64 {
	return r.chainID
}

// IsHealthy performs a health check on one endpoint
func (r *RPCClient) IsHealthy(ctx context.Context, endpoint string) bool {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return false
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err = client.BlockNumber(ctx)
	return err == nil
}

func (r *RPCClient) withClient(ctx context.Context, call func(context.Context, *rpc.Client) error) error {
	if len(r.endpoints) == 0 {
		return fmt.Errorf("no RPC endpoints available for network %s", r.network)
	}

	// Start at a random position for load balancing
	startIdx := rand.Intn(len(r.endpoints))
	var lastErr error

	for i := 0; i < len(r.endpoints); i++ {
		if i > 0 {
			delay := time.Duration(i*constants.DelayBetweenRPCCalls) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		// Wrap around using modulo for round-robin
		endpoint := r.endpoints[(startIdx+i)%len(r.endpoints)]

		client, err := rpc.DialContext(ctx, endpoint)
		if err != nil {
			lastErr = &RPCError{Endpoint: endpoint, Err: err}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, constants.RPCCallTimeout)
		err = call(callCtx, client)
		cancel()
		client.Close()

		if err == nil {
			return nil
		}
		if isDefinitive(err) {
			return err
		}

		r.logger.Debug("rpc endpoint failed", "network", r.network, "endpoint", endpoint, "error", err)
		lastErr = &RPCError{Endpoint: endpoint, Err: err}
	}

	return fmt.Errorf("all RPC endpoints failed for network %s: %w", r.network, lastErr)
}
