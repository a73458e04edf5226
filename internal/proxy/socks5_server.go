package proxy

import (
	"context"
	"net"
	"time"

	"github.com/die-net/sockstun/connector"
	"github.com/die-net/sockstun/internal/socks5"
)

// SOCKS5Server serves SOCKS5 CONNECT, dialing each destination through
// Config.Dialer.
type SOCKS5Server struct {
	ctx context.Context
	cfg Config
	log connector.Logger
}

func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	return &SOCKS5Server{ctx: ctx, cfg: cfg, log: loggerOrNop(cfg.Logger)}
}

// Serve accepts connections on ln until it is closed.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(c)
	}
}

func (s *SOCKS5Server) handleConn(conn net.Conn) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	if err := socks5.ServerNegotiate(conn, s.cfg.SOCKS5Auth); err != nil {
		s.log.Debugf("socks5 %s: %v", conn.RemoteAddr(), err)
		return
	}
	req, err := socks5.ServerReadRequest(conn)
	if err != nil {
		s.log.Debugf("socks5 %s: %v", conn.RemoteAddr(), err)
		return
	}

	dst := req.Address()
	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", dst)
	if err != nil {
		s.log.Errorf("socks5 connect %s: %v", dst, err)
		rep := byte(socks5.RepHostUnreachable)
		if connector.KindOf(err) == connector.KindTransport || ctx.Err() != nil {
			rep = socks5.RepGeneralFailure
		}
		socks5.WriteReply(conn, rep, req.Atyp)
		return
	}
	defer up.Close()

	if err := socks5.WriteSuccess(conn, up.LocalAddr()); err != nil {
		return
	}
	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}

	_ = CopyBidirectional(ctx, conn, up)
}
