package connector

import (
	"context"
	"net/url"
	"sync"
)

// Task is one connect running on its own goroutine. Its outcome is handed
// out once.
type Task struct {
	cancel context.CancelFunc
	stop   func() bool
	done   chan struct{}

	mu    sync.Mutex
	conn  *Conn
	err   error
	taken bool
}

// Start begins connecting c to target. Cancelling ctx, or calling Cancel,
// aborts a pending connect and closes a connection nobody has claimed.
func Start(ctx context.Context, c Connector, target *url.URL) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.stop = context.AfterFunc(ctx, t.discard)

	go func() {
		conn, err := c.Connect(ctx, target)

		t.mu.Lock()
		t.conn, t.err = conn, err
		close(t.done)
		t.mu.Unlock()

		if ctx.Err() != nil {
			t.discard()
		}
	}()

	return t
}

// Done is closed once the connect has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the connect finishes or ctx ends. The first call after
// completion gets the outcome; later calls get ErrTaskConsumed.
func (t *Task) Wait(ctx context.Context) (*Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
	}

	t.mu.Lock()
	if t.taken {
		t.mu.Unlock()
		return nil, ErrTaskConsumed
	}
	t.taken = true
	conn, err := t.conn, t.err
	t.conn = nil
	t.mu.Unlock()

	t.stop()
	t.cancel()
	return conn, err
}

// Cancel aborts the connect. A finished but unclaimed connection is closed
// before Cancel returns.
func (t *Task) Cancel() {
	t.cancel()
	t.discard()
}

func (t *Task) discard() {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.done:
	default:
		return
	}
	if t.taken || t.conn == nil {
		return
	}
	_ = t.conn.Close()
	t.conn = nil
	t.err = context.Canceled
}
