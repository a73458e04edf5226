package socks5

import (
	"errors"
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// Auth holds optional username/password credentials. An empty Username
// means no authentication.
type Auth struct {
	Username string
	Password string
}

// RFC 1928 method byte for "no acceptable methods", sent by either side.
const methodNoAcceptable = 0xff

// ErrNoAcceptableMethods is returned when the proxy accepts none of the
// offered authentication methods.
var ErrNoAcceptableMethods = errors.New("no acceptable authentication methods")

// ErrAuthRequired is returned when the proxy selects username/password
// authentication and no credentials were configured.
var ErrAuthRequired = errors.New("server requires username/password")

// ErrAuthFailed is returned when the proxy rejects the offered credentials.
var ErrAuthFailed = errors.New("auth failed")

// ClientDial negotiates authentication on conn and then issues a CONNECT for
// address ("host:port"). The conn is left open on error; closing it is the
// caller's job.
func ClientDial(conn net.Conn, auth Auth, address string) error {
	if err := ClientNegotiate(conn, auth); err != nil {
		return err
	}
	return ClientConnect(conn, address)
}

// ClientNegotiate runs method selection, followed by RFC 1929 sub-negotiation
// if the server picks username/password.
func ClientNegotiate(conn net.Conn, auth Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth.Username != "" {
		if len(auth.Username) > 255 || len(auth.Password) > 255 {
			return errors.New("username or password longer than 255 bytes")
		}
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth.Username == "" {
			return ErrAuthRequired
		}

		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return ErrAuthFailed
		}
		return nil
	case methodNoAcceptable:
		return ErrNoAcceptableMethods
	default:
		return fmt.Errorf("unsupported negotiation method: %d", neg.Method)
	}
}

// ClientConnect sends a CONNECT request for address and checks the reply.
// Domain names are passed to the proxy unresolved.
func ClientConnect(conn net.Conn, address string) error {
	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort).WriteTo(conn); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return &ReplyError{Code: rep.Rep}
	}
	return nil
}

// ReplyError is a non-success CONNECT reply.
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	if msg, ok := replyText[e.Code]; ok {
		return "connect failed: " + msg
	}
	return fmt.Sprintf("connect failed: reply code %#02x", e.Code)
}

// RFC 1928 section 6.
var replyText = map[byte]string{
	0x01: "general SOCKS server failure",
	0x02: "connection not allowed by ruleset",
	0x03: "network unreachable",
	0x04: "host unreachable",
	0x05: "connection refused",
	0x06: "TTL expired",
	0x07: "command not supported",
	0x08: "address type not supported",
}
