package socks4

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

const (
	version    = 0x04
	cmdConnect = 0x01

	// Reply codes.
	Granted          = 0x5a
	Rejected         = 0x5b
	NoIdentd         = 0x5c
	IdentdMismatched = 0x5d
)

// Resolver looks up IPv4 addresses for SOCKS4 (not 4a) requests, which cannot
// carry a hostname.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Request describes one CONNECT.
type Request struct {
	Host   string
	Port   uint16
	UserID string

	// RemoteResolve sends Host to the proxy as a SOCKS4a domain instead of
	// resolving it locally.
	RemoteResolve bool
}

// ReplyError is a rejected CONNECT.
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	switch e.Code {
	case Rejected:
		return "request rejected or failed"
	case NoIdentd:
		return "request rejected: proxy cannot reach client identd"
	case IdentdMismatched:
		return "request rejected: identd user-id mismatch"
	default:
		return fmt.Sprintf("request rejected: reply code %#02x", e.Code)
	}
}

// ClientConnect performs a CONNECT on conn. If the request needs local
// resolution, r is used (net.DefaultResolver when nil).
func ClientConnect(ctx context.Context, conn net.Conn, req Request, r Resolver) error {
	ip, domain, err := destination(ctx, req, r)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, 9+len(req.UserID)+len(domain)+1)
	buf = append(buf, version, cmdConnect)
	buf = binary.BigEndian.AppendUint16(buf, req.Port)
	buf = append(buf, ip[:]...)
	buf = append(buf, req.UserID...)
	buf = append(buf, 0x00)
	if domain != "" {
		buf = append(buf, domain...)
		buf = append(buf, 0x00)
	}

	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	var rep [8]byte
	if _, err := io.ReadFull(conn, rep[:]); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	// VN is 0 per the protocol; some proxies echo 4.
	if rep[0] != 0x00 && rep[0] != version {
		return fmt.Errorf("invalid reply version %#02x", rep[0])
	}
	if rep[1] != Granted {
		return &ReplyError{Code: rep[1]}
	}
	return nil
}

func destination(ctx context.Context, req Request, r Resolver) ([4]byte, string, error) {
	if req.Host == "" {
		return [4]byte{}, "", errors.New("missing destination host")
	}
	if strings.ContainsRune(req.UserID, 0) {
		return [4]byte{}, "", errors.New("user-id contains NUL")
	}

	if addr, err := netip.ParseAddr(req.Host); err == nil {
		if !addr.Unmap().Is4() {
			return [4]byte{}, "", fmt.Errorf("socks4 cannot address %s: not IPv4", req.Host)
		}
		return addr.Unmap().As4(), "", nil
	}

	if req.RemoteResolve {
		// 0.0.0.x with x != 0 marks a SOCKS4a domain request.
		return [4]byte{0, 0, 0, 1}, req.Host, nil
	}

	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip4", req.Host)
	if err != nil {
		return [4]byte{}, "", fmt.Errorf("resolve %s: %w", req.Host, err)
	}
	for _, a := range addrs {
		if a.Unmap().Is4() {
			return a.Unmap().As4(), "", nil
		}
	}
	return [4]byte{}, "", fmt.Errorf("resolve %s: no IPv4 address", req.Host)
}

// ServerRequest is a CONNECT as seen by a proxy.
type ServerRequest struct {
	Port   uint16
	IP     [4]byte
	UserID string
	Domain string
}

// Address returns the requested destination as "host:port".
func (r *ServerRequest) Address() string {
	host := r.Domain
	if host == "" {
		host = netip.AddrFrom4(r.IP).String()
	}
	return net.JoinHostPort(host, strconv.Itoa(int(r.Port)))
}

// ServerReadRequest reads a CONNECT request from br.
func ServerReadRequest(br *bufio.Reader) (*ServerRequest, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if hdr[0] != version {
		return nil, fmt.Errorf("invalid version %#02x", hdr[0])
	}
	if hdr[1] != cmdConnect {
		return nil, fmt.Errorf("unsupported command %#02x", hdr[1])
	}

	req := &ServerRequest{Port: binary.BigEndian.Uint16(hdr[2:4])}
	copy(req.IP[:], hdr[4:8])

	userID, err := readString(br)
	if err != nil {
		return nil, fmt.Errorf("read user-id: %w", err)
	}
	req.UserID = userID

	if req.IP[0] == 0 && req.IP[1] == 0 && req.IP[2] == 0 && req.IP[3] != 0 {
		if req.Domain, err = readString(br); err != nil {
			return nil, fmt.Errorf("read domain: %w", err)
		}
	}
	return req, nil
}

// WriteReply writes an 8-byte reply with the given code.
func WriteReply(w io.Writer, code byte) error {
	_, err := w.Write([]byte{0x00, code, 0, 0, 0, 0, 0, 0})
	return err
}

func readString(br *bufio.Reader) (string, error) {
	s, err := br.ReadString(0x00)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}
