package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

const copyBufferSize = 32 << 10

// buffers backs both tunnel copies and httputil.ReverseProxy bodies.
var buffers = &bufferPool{size: copyBufferSize}

type bufferPool struct {
	size int
	pool sync.Pool
}

func (p *bufferPool) Get() []byte {
	if b, ok := p.pool.Get().(*[]byte); ok {
		return *b
	}
	return make([]byte, p.size)
}

func (p *bufferPool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}

// CopyBidirectional shuttles bytes between a client conn and the tunneled
// upstream conn until either direction finishes or ctx ends. Both conns are
// closed on return.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group
	pump := func(dst, src net.Conn) func() error {
		return func() error {
			defer closeBoth()
			buf := buffers.Get()
			defer buffers.Put(buf)
			_, err := io.CopyBuffer(dst, src, buf)
			return err
		}
	}
	g.Go(pump(left, right))
	g.Go(pump(right, left))

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
