package testutil

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"
)

// StartSingleAcceptServer accepts one conn and hands it to handler. The
// returned wait func closes the listener and blocks until handler returns.
func StartSingleAcceptServer(ctx context.Context, t *testing.T, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closeOnDone(ctx, t, ln)

	var wg sync.WaitGroup
	wg.Go(func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	})

	wait := func() {
		_ = ln.Close()
		wg.Wait()
	}

	return ln, wait
}

// Pipe copies in both directions until either side finishes or ctx ends, then
// closes both conns.
func Pipe(ctx context.Context, left, right net.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		_, err := io.Copy(left, right)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(right, left)
		closeBoth()
		return err
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-done:
		}
		closeBoth()
		return nil
	})

	return g.Wait()
}
