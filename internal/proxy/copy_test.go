package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/die-net/sockstun/internal/testutil"
)

func TestCopyBidirectional(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echo := testutil.StartEchoTCPServer(ctx, t)
	up, err := net.Dial("tcp", echo.Addr().String())
	require.NoError(t, err)

	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- CopyBidirectional(ctx, server, up) }()

	testutil.AssertEcho(t, client, client, []byte("ping"))
	_ = client.Close()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("copy did not finish after client closed")
	}
}

func TestCopyBidirectionalContextCancel(t *testing.T) {
	t.Parallel()

	left, leftPeer := net.Pipe()
	right, rightPeer := net.Pipe()
	defer leftPeer.Close()
	defer rightPeer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- CopyBidirectional(ctx, left, right) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("copy did not stop on cancel")
	}
}

func TestBufferPool(t *testing.T) {
	t.Parallel()

	p := &bufferPool{size: 1024}
	b := p.Get()
	require.Len(t, b, 1024)
	p.Put(b[:10])
	require.Len(t, p.Get(), 1024)

	p.Put(make([]byte, 16))
	require.Len(t, p.Get(), 1024)
}
