package connector

import (
	"context"
	"net"
	"net/url"
	"strings"

	"golang.org/x/sync/semaphore"
)

// Limited caps the number of connects in flight through a Connector.
type Limited struct {
	inner Connector
	n     int64
	sem   *semaphore.Weighted
}

var (
	_ Connector = (*Limited)(nil)
	_ Dialer    = (*Limited)(nil)
)

// Limit allows at most n concurrent connects through inner.
func Limit(inner Connector, n int64) *Limited {
	return &Limited{inner: inner, n: n, sem: semaphore.NewWeighted(n)}
}

// Ready waits for a free slot, then forwards to the inner connector.
func (l *Limited) Ready(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.sem.Release(1)
	return l.inner.Ready(ctx)
}

// TryReady reports whether a slot is free without waiting. It fails with
// ErrBusy when every slot is taken.
func (l *Limited) TryReady() error {
	if !l.sem.TryAcquire(1) {
		return ErrBusy.New("%d connects in flight", l.n)
	}
	l.sem.Release(1)
	return nil
}

// Connect holds a slot for the duration of the connect.
func (l *Limited) Connect(ctx context.Context, target *url.URL) (*Conn, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)

	return l.inner.Connect(ctx, target)
}

// DialContext holds a slot while dialing address through the inner
// connector. An inner Dialer is used directly; any other Connector is asked
// to Connect to address.
func (l *Limited) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, ErrInvalidTarget.New("limited dial %s %s: unsupported network", network, address)
	}

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)

	if d, ok := l.inner.(Dialer); ok {
		return d.DialContext(ctx, network, address)
	}
	c, err := l.inner.Connect(ctx, &url.URL{Host: address})
	if err != nil {
		return nil, err
	}
	return c, nil
}
