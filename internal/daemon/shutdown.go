package daemon

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
)

// ShutdownCoordinator turns SIGINT/SIGTERM into cancellation of the
// supervisor context. The first request wins; later ones are only logged.
type ShutdownCoordinator struct {
	cancel    context.CancelFunc
	once      sync.Once
	requested atomic.Bool
	reason    atomic.Value // string
	signals   chan os.Signal
	done      chan struct{}
	logger    *zap.Logger
}

// NewShutdownCoordinator derives the supervisor context from parent.
func NewShutdownCoordinator(parent context.Context, logger *zap.Logger) (*ShutdownCoordinator, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &ShutdownCoordinator{
		cancel:  cancel,
		signals: make(chan os.Signal, 2),
		done:    make(chan struct{}),
		logger:  logger,
	}, ctx
}

// Listen starts forwarding termination signals until Stop is called.
func (c *ShutdownCoordinator) Listen() {
	signal.Notify(c.signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-c.signals:
				c.Request(sig.String())
			case <-c.done:
				return
			}
		}
	}()
}

// Request initiates shutdown. It returns true only for the first request.
func (c *ShutdownCoordinator) Request(reason string) bool {
	first := false
	c.once.Do(func() {
		first = true
		c.reason.Store(reason)
		c.requested.Store(true)
		c.logger.Info("shutdown requested", zap.String("reason", reason))
		c.cancel()
	})
	if !first {
		c.logger.Info("shutdown already in progress", zap.String("reason", reason))
	}
	return first
}

// Requested reports whether shutdown has been requested.
func (c *ShutdownCoordinator) Requested() bool {
	return c.requested.Load()
}

// Reason returns what triggered shutdown, or "" if nothing has.
func (c *ShutdownCoordinator) Reason() string {
	if r, ok := c.reason.Load().(string); ok {
		return r
	}
	return ""
}

// Stop detaches from signal delivery and releases the context.
func (c *ShutdownCoordinator) Stop() {
	signal.Stop(c.signals)
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.cancel()
}
