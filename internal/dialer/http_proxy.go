package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPConnectDialer reaches addresses through an HTTP or HTTPS proxy using
// the CONNECT method.
type HTTPConnectDialer struct {
	cfg      Config
	proxyURL *url.URL
	auth     string
	direct   Dialer
}

// NewHTTPConnectDialer constructs a CONNECT dialer for proxyURL, which must
// carry a host and port. If username is non-empty, Proxy-Authorization is set
// using HTTP Basic auth.
func NewHTTPConnectDialer(cfg Config, proxyURL *url.URL, username, password string) (*HTTPConnectDialer, error) {
	if proxyURL == nil {
		return nil, errors.New("http connect dialer: missing proxy url")
	}
	if proxyURL.Hostname() == "" {
		return nil, errors.New("http connect dialer: invalid proxy host")
	}
	if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" {
		return nil, fmt.Errorf("http connect dialer: unsupported scheme: %q", proxyURL.Scheme)
	}

	auth := ""
	if username != "" {
		auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	}

	return &HTTPConnectDialer{
		cfg:      cfg,
		proxyURL: proxyURL,
		auth:     auth,
		direct:   NewDirectDialer(cfg),
	}, nil
}

// DialContext connects to the proxy, performs TLS to it for https:// proxies,
// and issues CONNECT for address. The CONNECT exchange is bounded by
// NegotiationTimeout when set, and by ctx.
func (d *HTTPConnectDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("http connect dial %s %s: unsupported network", network, address)
	}

	raw, err := d.direct.DialContext(ctx, network, d.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("http connect: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = raw.Close()
	})

	if d.cfg.NegotiationTimeout > 0 {
		_ = raw.SetDeadline(time.Now().Add(d.cfg.NegotiationTimeout))
	}

	c, err := d.negotiate(ctx, raw, address)
	if !stop() {
		// ctx ended and raw is already closed.
		return nil, fmt.Errorf("http connect %s: %w", address, ctx.Err())
	}
	if err != nil {
		_ = raw.Close()
		return nil, err
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return c, nil
}

func (d *HTTPConnectDialer) negotiate(ctx context.Context, c net.Conn, address string) (net.Conn, error) {
	if d.proxyURL.Scheme == "https" {
		tlsConn := tls.Client(c, &tls.Config{MinVersion: tls.VersionTLS12, ServerName: d.proxyURL.Hostname()})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, fmt.Errorf("http connect tls handshake: %w", err)
		}
		c = tlsConn
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: make(http.Header),
	}
	if d.auth != "" {
		req.Header.Set("Proxy-Authorization", d.auth)
	}

	if err := req.Write(c); err != nil {
		return nil, fmt.Errorf("http connect write: %w", err)
	}

	// The proxy sends nothing past the response head until we write, so the
	// buffered reader cannot swallow tunneled bytes.
	resp, err := http.ReadResponse(bufio.NewReader(c), req)
	if err != nil {
		return nil, fmt.Errorf("http connect read: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("http connect failed: %s", resp.Status)
	}
	return c, nil
}
