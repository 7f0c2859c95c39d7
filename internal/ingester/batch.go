package ingester

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

// Batcher batches up items from a channel. Batches are created whenever maxItems have been
// received or maxTimeout has elapsed since the last batch was created (whichever occurs first).
// Whatever is buffered when the input channel closes is flushed as a final batch.
type Batcher[T any] struct {
	input      chan T
	maxItems   int
	maxTimeout time.Duration
	clock      clock.Clock
	callback   func([]T) error
	buffer     []T
}

func NewBatcher[T any](input chan T, maxItems int, maxTimeout time.Duration, clk clock.Clock, callback func([]T) error) *Batcher[T] {
	return &Batcher[T]{
		input:      input,
		maxItems:   maxItems,
		maxTimeout: maxTimeout,
		callback:   callback,
		clock:      clk,
	}
}

// Run consumes input until it is closed, ctx is done or callback fails. Callback errors are returned unchanged.
func (b *Batcher[T]) Run(ctx context.Context) error {
	for {
		b.buffer = make([]T, 0, b.maxItems)
		expire := b.clock.After(b.maxTimeout)
		for appendToBatch := true; appendToBatch; {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case value, ok := <-b.input:
				if !ok {
					return b.flush()
				}
				b.buffer = append(b.buffer, value)
				if len(b.buffer) >= b.maxItems {
					if err := b.flush(); err != nil {
						return err
					}
					appendToBatch = false
				}
			case <-expire:
				if err := b.flush(); err != nil {
					return err
				}
				appendToBatch = false
			}
		}
	}
}

func (b *Batcher[T]) flush() error {
	if len(b.buffer) == 0 {
		return nil
	}
	batch := b.buffer
	b.buffer = nil
	return b.callback(batch)
}
