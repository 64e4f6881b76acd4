// Package navigate delivers navigation requests to the browser surface.
//
// The surface is owned by a single goroutine. Dispatcher marshals each
// Navigate call onto it so the scheduler never touches the surface directly.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Navigate after Close.
var ErrClosed = errors.New("navigation dispatcher closed")

// Surface loads a URL. Load is only ever called from the dispatcher's
// owner goroutine.
type Surface interface {
	Load(ctx context.Context, url string) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(ctx context.Context, url string) error

// Load calls f.
func (f SurfaceFunc) Load(ctx context.Context, url string) error {
	return f(ctx, url)
}

// Dispatcher queues navigation requests for the owner goroutine.
type Dispatcher struct {
	surface Surface
	logger  *zap.Logger

	calls  chan string
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher starts the owner goroutine. queue is the number of requests
// that may wait while a load is in progress; values below 1 mean 1.
func NewDispatcher(surface Surface, logger *zap.Logger, queue int) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		surface: surface,
		logger:  logger,
		calls:   make(chan string, max(queue, 1)),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Navigate hands url to the owner goroutine and returns without waiting for
// the load. It blocks only while the queue is full.
func (d *Dispatcher) Navigate(ctx context.Context, url string) error {
	select {
	case d.calls <- url:
		// select picks randomly among ready cases, so the send can win
		// against a concurrent Close.
		select {
		case <-d.done:
			return ErrClosed
		default:
			return nil
		}
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the owner goroutine and waits for an in-flight load to
// return. Queued requests are dropped. Close is idempotent.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
		d.cancel()
	})
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case url := <-d.calls:
			if err := d.load(url); err != nil {
				d.logger.Warn("surface load failed", zap.String("url", url), zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) load(url string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("surface panic: %v", r)
		}
	}()
	return d.surface.Load(d.ctx, url)
}
