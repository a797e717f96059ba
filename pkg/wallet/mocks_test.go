package wallet

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sigweihq/chainsync/pkg/chains"
)

type recordedRequest struct {
	Method string
	Params []any
}

// mockRequester answers requests through handle and records every call
type mockRequester struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(method string, params []any) (json.RawMessage, error)
}

func (m *mockRequester) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	m.mu.Lock()
	m.requests = append(m.requests, recordedRequest{Method: method, Params: params})
	handle := m.handle
	m.mu.Unlock()

	if handle == nil {
		return json.RawMessage("null"), nil
	}
	return handle(method, params)
}

func (m *mockRequester) Requests() []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedRequest(nil), m.requests...)
}

func (m *mockRequester) Count(method string) int {
	n := 0
	for _, req := range m.Requests() {
		if req.Method == method {
			n++
		}
	}
	return n
}

// chainIDRequester returns a requester that reports chainID for eth_chainId and
// accepts every switch request
func chainIDRequester(chainID string) *mockRequester {
	return &mockRequester{handle: func(method string, _ []any) (json.RawMessage, error) {
		if method == "eth_chainId" {
			return json.Marshal(chainID)
		}
		return json.RawMessage("null"), nil
	}}
}

type funcSubscription struct {
	once sync.Once
	fn   func()
}

func (s *funcSubscription) Unsubscribe() {
	s.once.Do(s.fn)
}

// mockInjected is an injected wallet whose listeners are counted
// onSubscribe, when set, runs in its own goroutine for every new listener.
type mockInjected struct {
	mockRequester

	mu          sync.Mutex
	listeners   map[int]func(string)
	nextID      int
	active      atomic.Int32
	onSubscribe func(emit func(string))
}

func newMockInjected(handle func(method string, params []any) (json.RawMessage, error)) *mockInjected {
	m := &mockInjected{listeners: make(map[int]func(string))}
	m.handle = handle
	return m
}

func (m *mockInjected) OnChainChanged(fn func(chainID string)) chains.Subscription {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	hook := m.onSubscribe
	m.mu.Unlock()
	m.active.Add(1)

	if hook != nil {
		go hook(m.Emit)
	}

	return &funcSubscription{fn: func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
		m.active.Add(-1)
	}}
}

// Emit delivers a chainChanged event to every registered listener
func (m *mockInjected) Emit(chainID string) {
	m.mu.Lock()
	fns := make([]func(string), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(chainID)
	}
}

func (m *mockInjected) ListenerCount() int {
	return int(m.active.Load())
}

// emitAfter makes the wallet announce chainID on every new listener after d
func (m *mockInjected) emitAfter(d time.Duration, chainID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSubscribe = func(emit func(string)) {
		time.Sleep(d)
		emit(chainID)
	}
}

// mockNetworkEvents is a provider-level network change surface
type mockNetworkEvents struct {
	mu          sync.Mutex
	listeners   map[int]func(newNetwork, oldNetwork *chains.Network)
	nextID      int
	active      atomic.Int32
	onSubscribe func(emit func(*chains.Network))
}

func newMockNetworkEvents() *mockNetworkEvents {
	return &mockNetworkEvents{listeners: make(map[int]func(newNetwork, oldNetwork *chains.Network))}
}

func (m *mockNetworkEvents) OnNetworkChanged(fn func(newNetwork, oldNetwork *chains.Network)) chains.Subscription {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	hook := m.onSubscribe
	m.mu.Unlock()
	m.active.Add(1)

	if hook != nil {
		go hook(m.Emit)
	}

	return &funcSubscription{fn: func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
		m.active.Add(-1)
	}}
}

func (m *mockNetworkEvents) Emit(network *chains.Network) {
	m.mu.Lock()
	fns := make([]func(newNetwork, oldNetwork *chains.Network), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(network, nil)
	}
}

func (m *mockNetworkEvents) ListenerCount() int {
	return int(m.active.Load())
}

type mockQuerier struct {
	network *chains.Network
	err     error
	calls   atomic.Int32
}

func (m *mockQuerier) GetNetwork(context.Context) (*chains.Network, error) {
	m.calls.Add(1)
	return m.network, m.err
}

type mockSigner struct {
	address  string
	err      error
	provider *chains.Provider
}

func (m *mockSigner) Address(context.Context) (string, error) {
	return m.address, m.err
}

func (m *mockSigner) SendTransaction(context.Context, *chains.TxRequest) (string, error) {
	return "", nil
}

func (m *mockSigner) Provider() *chains.Provider {
	return m.provider
}

// bareSigner exposes no provider
type bareSigner struct {
	address string
}

func (s *bareSigner) Address(context.Context) (string, error) {
	return s.address, nil
}

func (s *bareSigner) SendTransaction(context.Context, *chains.TxRequest) (string, error) {
	return "", nil
}

// countingRecorder tallies metric names
type countingRecorder struct {
	mu        sync.Mutex
	counters  map[string]int
	latencies map[string]int
	labels    []map[string]string
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counters: map[string]int{}, latencies: map[string]int{}}
}

func (c *countingRecorder) IncCounter(name string, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name]++
	c.labels = append(c.labels, labels)
}

func (c *countingRecorder) ObserveLatency(name string, _ time.Duration, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies[name]++
}
