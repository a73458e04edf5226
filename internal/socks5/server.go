package socks5

import (
	"errors"
	"fmt"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// Reply codes a server hands back to a CONNECT request.
const (
	RepSucceeded          = txsocks5.RepSuccess
	RepGeneralFailure     = txsocks5.RepServerFailure
	RepHostUnreachable    = txsocks5.RepHostUnreachable
	RepCommandUnsupported = txsocks5.RepCommandNotSupported
)

// CmdConnect is the only command the servers here accept.
const CmdConnect = txsocks5.CmdConnect

// ServerNegotiate answers the client's method selection. A non-empty
// auth.Username requires username/password with matching credentials;
// otherwise no-auth is selected.
func ServerNegotiate(conn net.Conn, auth Auth) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	method := byte(txsocks5.MethodNone)
	if auth.Username != "" {
		method = txsocks5.MethodUsernamePassword
	}
	if !slices.Contains(neg.Methods, method) {
		_, _ = txsocks5.NewNegotiationReply(methodNoAcceptable).WriteTo(conn)
		return fmt.Errorf("client did not offer method %#x", method)
	}
	if _, err := txsocks5.NewNegotiationReply(method).WriteTo(conn); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	if method == txsocks5.MethodNone {
		return nil
	}

	urq, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("read userpass: %w", err)
	}
	status := byte(txsocks5.UserPassStatusSuccess)
	if string(urq.Uname) != auth.Username || string(urq.Passwd) != auth.Password {
		status = txsocks5.UserPassStatusFailure
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(status).WriteTo(conn); err != nil {
		return fmt.Errorf("write userpass: %w", err)
	}
	if status != txsocks5.UserPassStatusSuccess {
		return ErrAuthFailed
	}
	return nil
}

// ServerReadRequest reads the client's command request. Anything other than
// CONNECT is answered with RepCommandUnsupported and returned as an error.
func ServerReadRequest(conn net.Conn) (*txsocks5.Request, error) {
	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if req.Cmd != CmdConnect {
		WriteReply(conn, RepCommandUnsupported, req.Atyp)
		return nil, errors.New("unsupported command")
	}
	return req, nil
}

// WriteReply writes a failure reply with a zero bound address of the
// request's address family.
func WriteReply(conn net.Conn, rep, atyp byte) {
	addr := []byte{0, 0, 0, 0}
	if atyp == txsocks5.ATYPIPv6 {
		addr, atyp = []byte(net.IPv6zero), txsocks5.ATYPIPv6
	} else {
		atyp = txsocks5.ATYPIPv4
	}
	_, _ = txsocks5.NewReply(rep, atyp, addr, []byte{0, 0}).WriteTo(conn)
}

// WriteSuccess writes RepSucceeded with bound as the bound address.
func WriteSuccess(conn net.Conn, bound net.Addr) error {
	atyp, addr, port, err := txsocks5.ParseAddress(bound.String())
	if err != nil {
		return fmt.Errorf("parse bound address %q: %w", bound, err)
	}
	if atyp == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(RepSucceeded, atyp, addr, port).WriteTo(conn); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	return nil
}
