package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sigweihq/chainsync/pkg/chains"
	"github.com/sigweihq/chainsync/pkg/constants"
)

// ErrBridgeClosed is returned for requests issued after the bridge connection ended
var ErrBridgeClosed = errors.New("wallet bridge closed")

// bridgeMessage is the envelope exchanged with the wallet bridge.
// Requests carry id/method/params, responses carry id/result or id/error,
// and wallet events carry event/data.
type bridgeMessage struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params []any           `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ProviderError  `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// BridgeWallet is an injected wallet reached over a websocket bridge, e.g. a
// browser extension relaying EIP-1193 calls and events to this process.
// It implements chains.Injected.
type BridgeWallet struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu           sync.Mutex
	nextID       uint64
	pending      map[uint64]chan bridgeMessage
	nextListener uint64
	listeners    map[uint64]func(string)

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ chains.Injected = (*BridgeWallet)(nil)

// DialBridge connects to a wallet bridge
func DialBridge(ctx context.Context, url string, logger *slog.Logger) (*BridgeWallet, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: constants.BridgeHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &RPCError{Endpoint: url, Err: err}
	}

	b := &BridgeWallet{
		conn:      conn,
		logger:    logger,
		pending:   make(map[uint64]chan bridgeMessage),
		listeners: make(map[uint64]func(string)),
		closed:    make(chan struct{}),
	}
	go b.readLoop()

	return b, nil
}

// Provider returns the capability descriptor backed by this bridge
func (b *BridgeWallet) Provider() *chains.Provider {
	return &chains.Provider{
		Name: "bridge",
		RPC:  b,
	}
}

// Request implements chains.Requester
func (b *BridgeWallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	ch := make(chan bridgeMessage, 1)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.pending[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	b.writeMu.Lock()
	err := b.conn.WriteJSON(bridgeMessage{ID: id, Method: method, Params: params})
	b.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.closed:
		return nil, b.closeErr
	}
}

// OnChainChanged implements chains.ChainEvents
func (b *BridgeWallet) OnChainChanged(fn func(chainID string)) chains.Subscription {
	b.mu.Lock()
	b.nextListener++
	id := b.nextListener
	b.listeners[id] = fn
	b.mu.Unlock()

	return &listenerSubscription{remove: func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}}
}

// ListenerCount returns the number of registered chainChanged listeners
func (b *BridgeWallet) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Close terminates the bridge connection
func (b *BridgeWallet) Close() error {
	b.shutdown(ErrBridgeClosed)
	return b.conn.Close()
}

// Done is closed once the connection has ended
func (b *BridgeWallet) Done() <-chan struct{} {
	return b.closed
}

func (b *BridgeWallet) readLoop() {
	for {
		var msg bridgeMessage
		if err := b.conn.ReadJSON(&msg); err != nil {
			b.shutdown(fmt.Errorf("%w: %v", ErrBridgeClosed, err))
			return
		}

		switch {
		case msg.Event == constants.EventChainChanged:
			b.dispatchChainChanged(msg.Data)
		case msg.Event != "":
			b.logger.Debug("ignoring wallet event", "event", msg.Event)
		case msg.ID != 0:
			b.mu.Lock()
			ch, ok := b.pending[msg.ID]
			b.mu.Unlock()
			if ok {
				ch <- msg
			}
		}
	}
}

func (b *BridgeWallet) dispatchChainChanged(data json.RawMessage) {
	var chainID string
	if err := json.Unmarshal(data, &chainID); err != nil {
		// Some wallets emit the id as a number
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			b.logger.Debug("malformed chainChanged payload", "data", string(data))
			return
		}
		chainID = n.String()
	}

	b.mu.Lock()
	fns := make([]func(string), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(chainID)
	}
}

func (b *BridgeWallet) shutdown(err error) {
	b.closeOnce.Do(func() {
		b.closeErr = err
		close(b.closed)
	})
}

type listenerSubscription struct {
	once   sync.Once
	remove func()
}

func (s *listenerSubscription) Unsubscribe() {
	s.once.Do(s.remove)
}
