package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	errListenerStopped = errors.New("listener stopped")
)

type Job interface {
	Start(ctx context.Context)
	Stop()
}

// Listener runs handler for every value received from a channel on a
// single goroutine, in arrival order.
type Listener[T any] struct {
	handler     func(input T) error
	stopHandler func()
	onError     func(error)

	in     <-chan T
	wg     sync.WaitGroup
	cancel func()
}

func New[T any](
	in <-chan T,
	handler func(T) error,
	stopHandler ...func(),
) *Listener[T] {
	if len(stopHandler) == 0 {
		stopHandler = []func(){func() {}}
	}

	return &Listener[T]{
		in:          in,
		handler:     handler,
		cancel:      func() {},
		stopHandler: stopHandler[0],
		onError: func(err error) {
			slog.Error("channel listener error", "error", err)
		},
	}
}

// OnError replaces the handler error callback. By default errors are
// logged and the listener keeps running.
func (l *Listener[T]) OnError(f func(error)) *Listener[T] {
	l.onError = f
	return l
}

func (l *Listener[T]) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		for {
			err := l.run(ctx)
			switch {
			case errors.Is(err, errListenerStopped):
				return
			case err != nil:
				l.onError(err)
			}
		}
	}()
}

func (l *Listener[T]) run(ctx context.Context) error {
	select {
	case inp, ok := <-l.in:
		if !ok {
			return errListenerStopped
		}
		return l.handle(inp)
	case <-ctx.Done():
		return errListenerStopped
	}
}

func (l *Listener[T]) handle(inp T) error {
	if err := l.handler(inp); err != nil {
		return fmt.Errorf("failed to handle input: %w", err)
	}
	return nil
}

// Stop cancels the listener, handles the values already queued on the
// channel and runs the stop handler.
func (l *Listener[T]) Stop() {
	l.cancel()
	l.wg.Wait()
	l.drain()
	l.stopHandler()
}

func (l *Listener[T]) drain() {
	for {
		select {
		case inp, ok := <-l.in:
			if !ok {
				return
			}
			if err := l.handle(inp); err != nil {
				l.onError(err)
			}
		default:
			return
		}
	}
}
