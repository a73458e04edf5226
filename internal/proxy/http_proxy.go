package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/die-net/sockstun/connector"
)

// HTTPProxyServer serves an HTTP forward proxy.
//
// It supports:
// - HTTP CONNECT tunneling (via connection hijacking + bidirectional copy)
// - non-CONNECT proxying (via httputil.ReverseProxy)
type HTTPProxyServer struct {
	ctx    context.Context
	dialer connector.Dialer
	log    connector.Logger
	srv    *http.Server
	rp     *httputil.ReverseProxy
}

// NewHTTPProxyServer constructs an HTTP proxy server. Serve starts accepting
// connections on a listener; Close stops the underlying http.Server.
func NewHTTPProxyServer(ctx context.Context, cfg Config) *HTTPProxyServer {
	h := &HTTPProxyServer{
		ctx:    ctx,
		dialer: cfg.Dialer,
		log:    loggerOrNop(cfg.Logger),
		rp:     newReverseProxy(cfg),
	}
	h.srv = &http.Server{
		Handler:           http.HandlerFunc(h.handle),
		ReadHeaderTimeout: cfg.NegotiationTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return h.ctx
		},
	}
	return h
}

// Serve serves HTTP proxy requests on ln.
func (s *HTTPProxyServer) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Close stops the HTTP server.
func (s *HTTPProxyServer) Close() error {
	return s.srv.Close()
}

func (s *HTTPProxyServer) handle(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Method, http.MethodConnect) {
		s.handleConnect(w, r)
		return
	}
	s.rp.ServeHTTP(w, r)
}

func (s *HTTPProxyServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, brw, err := hj.Hijack()
	if err != nil {
		http.Error(w, "hijack failed", http.StatusInternalServerError)
		return
	}
	_ = brw.Flush()

	target := r.Host
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(target, "443")
	}

	ctx := r.Context()

	serverConn, err := s.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		s.log.Errorf("http connect %s: %v", target, err)
		_, _ = writeError(brw, err, statusForError(err))
		_ = brw.Flush()
		_ = clientConn.Close()
		return
	}

	_, _ = brw.WriteString("HTTP/1.1 200 Connection Established\r\n\r\n")
	_ = brw.Flush()

	// Bytes the client pipelined after the CONNECT header are already
	// buffered in brw.
	if n := brw.Reader.Buffered(); n > 0 {
		b, _ := brw.Reader.Peek(n)
		if _, err := serverConn.Write(b); err != nil {
			_ = serverConn.Close()
			_ = clientConn.Close()
			return
		}
	}

	_ = CopyBidirectional(ctx, clientConn, serverConn)
}

// statusForError maps connector failures to a proxy status: the tunnel
// refusing the target is a 502, not reaching the proxy at all a 503. An
// abandoned connect is not blamed on the proxy.
func statusForError(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}

	switch connector.KindOf(err) {
	case connector.KindTransport, connector.KindBusy:
		return http.StatusServiceUnavailable
	case connector.KindMissingHost, connector.KindInvalidTarget:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// writeError simulates http.Error() for use on a hijacked connection.
func writeError(brw *bufio.ReadWriter, err error, code int) (int, error) {
	return fmt.Fprintf(brw, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nConnection: close\r\n\r\n%s\r\n", code, http.StatusText(code), err.Error())
}

func newReverseProxy(cfg Config) *httputil.ReverseProxy {
	log := loggerOrNop(cfg.Logger)

	rewrite := func(pr *httputil.ProxyRequest) {
		r := pr.Out

		// Allow scheme override through a non-standard header.
		if s, ok := r.Header["X-Proxy-Scheme"]; ok {
			delete(r.Header, "X-Proxy-Scheme")
			r.URL.Scheme = s[0]
		} else if r.URL.Scheme == "" {
			r.URL.Scheme = "http"
		}

		if r.URL.Host == "" {
			r.URL.Host = pr.In.Host
		}
		r.Host = r.URL.Host
	}

	errHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		log.Errorf("http proxy %s: %v", r.URL, err)
		http.Error(w, err.Error(), statusForError(err))
	}

	return &httputil.ReverseProxy{
		Rewrite:       rewrite,
		Transport:     cfg.Transport,
		FlushInterval: 10 * time.Millisecond, // Only buffer incomplete responses briefly
		ErrorHandler:  errHandler,
		BufferPool:    buffers,
	}
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Errorf(string, ...any) {}

func loggerOrNop(l connector.Logger) connector.Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
