// Package worker runs post-acknowledgment protocol tasks on a bounded queue
// with an explicit error boundary, so a failing callback is logged and
// counted instead of vanishing inside an unawaited goroutine.
package worker

import (
	"context"
	"sync"

	"github.com/voltra-energy/voltra/internal/config"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Task is one unit of asynchronous work. The error return crosses the
// boundary for logging only; the task itself must have recorded any state it
// wants observable.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Dispatcher struct {
	log    *zap.Logger
	queue  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewDispatcher(log *zap.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		log:    log.Named("protocol.worker"),
		queue:  make(chan Task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines. Idempotent.
func (d *Dispatcher) Start(workers int) {
	if workers <= 0 {
		workers = 4
	}
	d.startOnce.Do(func() {
		for i := 0; i < workers; i++ {
			d.wg.Add(1)
			go d.loop()
		}
	})
}

// Submit enqueues a task without blocking. A full queue returns ErrQueueFull
// so the synchronous path can NACK instead of stalling the acknowledgment.
// The read lock guarantees no send can race the close in Stop.
func (d *Dispatcher) Submit(task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return protocoldomain.ErrQueueFull
	}
	select {
	case d.queue <- task:
		return nil
	default:
		return protocoldomain.ErrQueueFull
	}
}

// Stop rejects new submissions, drains the queue and waits for in-flight
// tasks. Queued tasks still run with a live context; cancellation only
// happens once the queue is empty.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
		close(d.queue)
		d.wg.Wait()
		d.cancel()
	})
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for task := range d.queue {
		d.run(task)
	}
}

func (d *Dispatcher) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("task panicked",
				zap.String("task", task.Name),
				zap.Any("panic", r))
		}
	}()

	if err := task.Run(d.ctx); err != nil {
		d.log.Warn("task failed",
			zap.String("task", task.Name),
			zap.Error(err))
	}
}

// NewFromConfig sizes the dispatcher from protocol config and ties it to the
// fx lifecycle.
func NewFromConfig(lc fx.Lifecycle, log *zap.Logger, cfg config.Config) *Dispatcher {
	d := NewDispatcher(log, cfg.Protocol.WorkerQueueSize)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			d.Start(4)
			return nil
		},
		OnStop: func(context.Context) error {
			d.Stop()
			return nil
		},
	})
	return d
}
