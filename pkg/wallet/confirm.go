package wallet

import (
	"context"
	"time"

	"github.com/sigweihq/chainsync/pkg/chains"
)

// firstValue subscribes and returns a channel holding the first delivered value
// Later deliveries are dropped.
func firstValue[T any](subscribe func(deliver func(T)) chains.Subscription) (<-chan T, chains.Subscription) {
	ch := make(chan T, 1)
	deliver := func(v T) {
		select {
		case ch <- v:
		default:
		}
	}
	return ch, subscribe(deliver)
}

// awaitValue races ch against a timer and ctx
func awaitValue[T any](ctx context.Context, timeout time.Duration, ch <-chan T) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case v := <-ch:
		return v, true
	case <-timer.C:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// awaitFirst races the first value delivered through a subscription against a
// timer and ctx. The subscription is always removed before returning, whichever
// side wins, and later deliveries are dropped.
func awaitFirst[T any](ctx context.Context, timeout time.Duration, subscribe func(deliver func(T)) chains.Subscription) (T, bool) {
	ch, sub := firstValue(subscribe)
	if sub != nil {
		defer sub.Unsubscribe()
	}
	return awaitValue(ctx, timeout, ch)
}

type chainEvent struct {
	chainID int64
	ok      bool
}

// chainWatch holds a chain change subscription open until wait or stop
type chainWatch struct {
	events   <-chan chainEvent
	sub      chains.Subscription
	attached bool
}

// watchChain subscribes to the next chain change. The injected wallet's
// chainChanged event is preferred over the provider's network event.
func (r *Reconciler) watchChain(p *chains.Provider) *chainWatch {
	switch {
	case r.injected != nil:
		events, sub := firstValue(func(deliver func(chainEvent)) chains.Subscription {
			return r.injected.OnChainChanged(func(raw string) {
				chainID, ok := chains.ParseChainID(raw)
				if !ok {
					r.logger.Debug("unparseable chainChanged payload", "chainID", raw)
				}
				deliver(chainEvent{chainID: chainID, ok: ok})
			})
		})
		return &chainWatch{events: events, sub: sub, attached: true}

	case p != nil && p.Events != nil:
		events, sub := firstValue(func(deliver func(chainEvent)) chains.Subscription {
			return p.Events.OnNetworkChanged(func(newNetwork, _ *chains.Network) {
				if newNetwork == nil || newNetwork.ChainID <= 0 {
					deliver(chainEvent{})
					return
				}
				deliver(chainEvent{chainID: newNetwork.ChainID, ok: true})
			})
		})
		return &chainWatch{events: events, sub: sub, attached: true}
	}
	return &chainWatch{}
}

// stop removes the subscription; safe to call more than once
func (w *chainWatch) stop() {
	if w.sub != nil {
		w.sub.Unsubscribe()
		w.sub = nil
	}
}

// wait returns the first chain change seen since the watch opened, waiting up
// to timeout for one. The subscription is removed before it returns.
func (w *chainWatch) wait(ctx context.Context, timeout time.Duration) (int64, bool) {
	defer w.stop()
	if !w.attached {
		return 0, false
	}
	ev, fired := awaitValue(ctx, timeout, w.events)
	if !fired {
		return 0, false
	}
	return ev.chainID, ev.ok
}

// ConfirmSwitch waits up to timeout for a chain change notification and returns
// the chain it reports. The injected wallet's chainChanged event is preferred over
// the provider's network event. With neither surface it returns immediately.
func (r *Reconciler) ConfirmSwitch(ctx context.Context, p *chains.Provider, timeout time.Duration) (int64, bool) {
	return r.watchChain(p).wait(ctx, r.waitTimeout(timeout))
}

func (r *Reconciler) waitTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return r.confirmTimeout
	}
	return timeout
}
