// Package polling runs a function on a fixed interval until cancelled.
package polling

import (
	"context"
	"sync"
	"time"
)

// Ticket controls a running poll loop.
type Ticket struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start calls fn immediately and then once per interval. A run that takes
// longer than interval delays the next one instead of overlapping it. The
// context passed to fn is cancelled when the ticket is stopped or ctx ends.
func Start(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) *Ticket {
	ctx, cancel := context.WithCancel(ctx)
	t := &Ticket{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			fn(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return t
}

// Stop cancels the loop and waits for an in-progress run to return. It is
// safe to call more than once.
func (t *Ticket) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the loop has exited.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}
