package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/domain"
)

var (
	// ErrDispatchTimeout is returned when the dispatch queue stayed full for the whole publish timeout
	ErrDispatchTimeout = errors.New("dispatch queue full")

	// ErrDispatcherStopped is returned when work is dispatched after Stop
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Dispatcher runs all observer callbacks on a single goroutine, the way a UI
// main queue would. Enqueueing is bounded so publishers never block for long.
type Dispatcher struct {
	queue    chan func()
	timeout  time.Duration
	logger   *zap.Logger
	mu       sync.RWMutex
	running  bool
	stopped  bool
	stopChan chan struct{}
	workerWg sync.WaitGroup
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(config *domain.DispatchConfig, logger *zap.Logger) *Dispatcher {
	size := config.QueueSize
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:    make(chan func(), size),
		timeout:  config.PublishTimeout,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start starts the dispatch loop
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	if d.running {
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true

	d.workerWg.Add(1)
	go d.loop(ctx)

	return nil
}

// Stop stops the dispatch loop. Work still queued is discarded.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher not running")
	}
	d.running = false
	d.stopped = true
	close(d.stopChan)
	d.mu.Unlock()

	d.workerWg.Wait()

	if dropped := len(d.queue); dropped > 0 {
		d.logger.Warn("Dispatcher stopped with pending work", zap.Int("dropped", dropped))
	}
	return nil
}

// IsRunning returns whether the dispatch loop is running
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Pending returns the number of queued callbacks
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Dispatch enqueues fn for execution on the dispatch goroutine
func (d *Dispatcher) Dispatch(fn func()) error {
	d.mu.RLock()
	stopped := d.stopped
	d.mu.RUnlock()
	if stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- fn:
		return nil
	default:
	}

	if d.timeout <= 0 {
		return ErrDispatchTimeout
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case d.queue <- fn:
		return nil
	case <-timer.C:
		return ErrDispatchTimeout
	case <-d.stopChan:
		return ErrDispatcherStopped
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.workerWg.Done()
	defer d.markStopped()

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("Dispatcher stopped", zap.String("reason", "context_cancelled"))
			return
		case <-d.stopChan:
			d.logger.Debug("Dispatcher stopped", zap.String("reason", "stop_signal"))
			return
		case fn := <-d.queue:
			d.run(fn)
		}
	}
}

// markStopped leaves the dispatcher stopped when the loop ended on its own,
// so callers see it as not running and Dispatch fails fast.
func (d *Dispatcher) markStopped() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.running = false
	d.stopped = true
	close(d.stopChan)
}

// run executes one callback; a panic must not take the loop down
func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Dispatched callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
