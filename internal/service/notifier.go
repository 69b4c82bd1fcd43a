package service

import (
	"context"
	"log/slog"
	"sync"
)

// StatusFunc receives human readable progress messages.
type StatusFunc func(message string)

const defaultNotifyBuffer = 64

// notifier delivers status messages to a StatusFunc on its own goroutine. The
// goroutine lives only while messages are queued. When the queue is full the
// message is dropped and logged instead.
type notifier struct {
	fn  StatusFunc
	max int

	mu     sync.Mutex
	queue  []string
	active bool
	wg     sync.WaitGroup
}

func newNotifier(fn StatusFunc, size int) *notifier {
	if size <= 0 {
		size = defaultNotifyBuffer
	}
	return &notifier{fn: fn, max: size}
}

func (n *notifier) notify(ctx context.Context, msg string) {
	slog.InfoContext(ctx, "status", "message", msg)
	if n.fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) >= n.max {
		slog.WarnContext(ctx, "status receiver is too slow: dropping message", "message", msg)
		return
	}
	n.queue = append(n.queue, msg)
	if !n.active {
		n.active = true
		n.wg.Go(n.drain)
	}
}

func (n *notifier) drain() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.active = false
			n.mu.Unlock()
			return
		}
		msg := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()

		n.deliver(msg)
	}
}

func (n *notifier) deliver(msg string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("status receiver panicked", "panic", r)
		}
	}()
	n.fn(msg)
}

func (n *notifier) wait() {
	n.wg.Wait()
}
