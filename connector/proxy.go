package connector

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Protocol is the SOCKS version spoken to a proxy.
type Protocol int

const (
	SOCKS4 Protocol = iota + 1
	// SOCKS4A sends hostnames to the proxy instead of resolving them locally.
	SOCKS4A
	SOCKS5
)

func (p Protocol) String() string {
	switch p {
	case SOCKS4:
		return "socks4"
	case SOCKS4A:
		return "socks4a"
	case SOCKS5:
		return "socks5"
	default:
		return "protocol(" + strconv.Itoa(int(p)) + ")"
	}
}

const defaultProxyPort = "1080"

// Auth holds SOCKS5 username/password credentials.
type Auth struct {
	Username string
	Password string
}

// Proxy describes a SOCKS proxy endpoint. UserID is sent by SOCKS4 and
// SOCKS4a; Auth is offered by SOCKS5, and nil requests anonymous access.
type Proxy struct {
	Protocol Protocol
	Addr     string
	Auth     *Auth
	UserID   string
}

// ParseProxy parses a proxy URL of the form
//
//	socks4://[userid@]host[:port]
//	socks4a://[userid@]host[:port]
//	socks5://[user[:pass]@]host[:port]
//	socks5h://[user[:pass]@]host[:port]
//
// The port defaults to 1080. socks5h is accepted as an alias of socks5, which
// always passes hostnames to the proxy.
func ParseProxy(raw string) (Proxy, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Proxy{}, ErrInvalidProxy.Wrap(err, "parse proxy url")
	}
	return ProxyFromURL(u)
}

// ProxyFromURL is ParseProxy for an already parsed URL.
func ProxyFromURL(u *url.URL) (Proxy, error) {
	var p Proxy
	switch strings.ToLower(u.Scheme) {
	case "socks4":
		p.Protocol = SOCKS4
	case "socks4a":
		p.Protocol = SOCKS4A
	case "socks5", "socks5h":
		p.Protocol = SOCKS5
	case "":
		return Proxy{}, ErrInvalidProxy.New("missing scheme")
	default:
		return Proxy{}, ErrInvalidProxy.New("unsupported scheme %q", u.Scheme)
	}

	if u.Opaque != "" || (u.Path != "" && u.Path != "/") {
		return Proxy{}, ErrInvalidProxy.New("path should be empty")
	}
	host := u.Hostname()
	if host == "" {
		return Proxy{}, ErrInvalidProxy.New("missing host")
	}
	port := u.Port()
	if port == "" {
		port = defaultProxyPort
	} else if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return Proxy{}, ErrInvalidProxy.Wrap(err, "invalid port %q", port)
	}
	p.Addr = net.JoinHostPort(host, port)

	if u.User != nil {
		pass, hasPass := u.User.Password()
		if p.Protocol == SOCKS5 {
			if u.User.Username() != "" {
				p.Auth = &Auth{Username: u.User.Username(), Password: pass}
			}
		} else {
			if hasPass {
				return Proxy{}, ErrInvalidProxy.New("%s carries a user id, not a password", p.Protocol)
			}
			p.UserID = u.User.Username()
		}
	}

	return p, nil
}

// URL returns p as a proxy URL.
func (p Proxy) URL() *url.URL {
	u := &url.URL{Scheme: p.Protocol.String(), Host: p.Addr}
	switch {
	case p.Protocol == SOCKS5 && p.Auth != nil:
		u.User = url.UserPassword(p.Auth.Username, p.Auth.Password)
	case p.UserID != "":
		u.User = url.User(p.UserID)
	}
	return u
}

// String returns p's URL with any password redacted.
func (p Proxy) String() string {
	return p.URL().Redacted()
}
