package app

import (
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/domain"
)

// Subscription is the handle returned by Subscribe
type Subscription struct {
	id       uint64
	notifier *Notifier
	resolve  func() (domain.Observer, bool)

	// mu is held while the observer is called; active is only cleared under it
	// unless the observer itself is unsubscribing from inside its callback.
	mu         sync.Mutex
	active     atomic.Bool
	delivering atomic.Bool
}

// Unsubscribe stops delivery to the observer
func (s *Subscription) Unsubscribe() {
	s.notifier.Unsubscribe(s)
}

// Active reports whether the subscription still receives events
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Notifier fans progress and completion events out to observers.
// Delivery happens on the dispatcher goroutine.
type Notifier struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
}

// NewNotifier creates a notifier delivering through dispatcher
func NewNotifier(dispatcher *Dispatcher, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		dispatcher: dispatcher,
		logger:     logger,
		subs:       make(map[uint64]*Subscription),
	}
}

// Subscribe registers an observer. The notifier keeps it alive until Unsubscribe.
func (n *Notifier) Subscribe(observer domain.Observer) *Subscription {
	return n.add(func() (domain.Observer, bool) { return observer, true })
}

// SubscribeWeak registers an observer through a weak pointer. Once the
// observer is garbage collected the subscription is dropped on the next event.
func SubscribeWeak[T any, P interface {
	*T
	domain.Observer
}](n *Notifier, observer P) *Subscription {
	ref := weak.Make((*T)(observer))
	return n.add(func() (domain.Observer, bool) {
		ptr := ref.Value()
		if ptr == nil {
			return nil, false
		}
		return P(ptr), true
	})
}

func (n *Notifier) add(resolve func() (domain.Observer, bool)) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := &Subscription{id: n.nextID, notifier: n, resolve: resolve}
	sub.active.Store(true)
	n.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription. After it returns no further event
// reaches the observer; a callback already running is allowed to finish.
func (n *Notifier) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	n.mu.Lock()
	delete(n.subs, sub.id)
	n.mu.Unlock()

	if sub.delivering.Load() {
		// Either we are inside the observer's own callback, or another
		// goroutine is; both see active=false before the next delivery.
		sub.active.Store(false)
		return
	}
	sub.mu.Lock()
	sub.active.Store(false)
	sub.mu.Unlock()
}

// SubscriberCount returns the number of registered subscriptions
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// PublishProgress delivers a snapshot to every current subscriber
func (n *Notifier) PublishProgress(progress domain.DownloadRequest) error {
	return n.publish("progress", progress.ID, func(o domain.Observer) {
		o.DownloadDidUpdate(progress)
	})
}

// PublishCompletion delivers a terminal outcome to every current subscriber
func (n *Notifier) PublishCompletion(id string, response domain.FetcherResponse) error {
	return n.publish("completion", id, func(o domain.Observer) {
		o.DownloadWasCompleted(id, response)
	})
}

// publish captures the subscribers at call time so late subscribers never
// see earlier events
func (n *Notifier) publish(kind, id string, call func(domain.Observer)) error {
	n.mu.RLock()
	subs := make([]*Subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	err := n.dispatcher.Dispatch(func() {
		for _, sub := range subs {
			n.deliver(sub, kind, id, call)
		}
	})
	if err != nil {
		n.logger.Warn("Dropped event",
			zap.String("event", kind),
			zap.String("id", id),
			zap.Int("subscribers", len(subs)),
			zap.Error(err))
		return fmt.Errorf("failed to publish %s for %s: %w", kind, id, err)
	}
	return nil
}

func (n *Notifier) deliver(sub *Subscription, kind, id string, call func(domain.Observer)) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if !sub.active.Load() {
		return
	}
	observer, ok := sub.resolve()
	if !ok {
		sub.active.Store(false)
		n.mu.Lock()
		delete(n.subs, sub.id)
		n.mu.Unlock()
		n.logger.Debug("Observer released, subscription dropped", zap.Uint64("subscription", sub.id))
		return
	}

	sub.delivering.Store(true)
	defer sub.delivering.Store(false)
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Observer panicked",
				zap.String("event", kind),
				zap.String("id", id),
				zap.Uint64("subscription", sub.id),
				zap.Any("panic", r))
		}
	}()

	call(observer)
}
