package connector

import (
	"errors"

	"github.com/joomcode/errorx"
)

var (
	// Errors is the namespace every connector error type belongs to.
	Errors = errorx.NewNamespace("connector")

	// ErrMissingHost marks a target without a host. Raised before any I/O.
	ErrMissingHost = Errors.NewType("missing_host")
	// ErrTransport marks a failure to reach the proxy.
	ErrTransport = Errors.NewType("transport")
	// ErrProtocol marks a failed or rejected proxy handshake.
	ErrProtocol = Errors.NewType("protocol")
	// ErrTLS marks a failed TLS handshake over an established tunnel.
	ErrTLS = Errors.NewType("tls")

	// ErrInvalidProxy marks a proxy URL that cannot describe a SOCKS proxy.
	ErrInvalidProxy = Errors.NewType("invalid_proxy")
	// ErrInvalidTarget marks a destination that cannot be tunneled, such as a
	// bad port or a non-TCP network.
	ErrInvalidTarget = Errors.NewType("invalid_target")
	// ErrBusy marks a limiter with every slot taken.
	ErrBusy = Errors.NewType("busy")
)

// ErrTaskConsumed is returned by Task.Wait once the outcome has been taken.
var ErrTaskConsumed = errors.New("connector: task outcome already taken")

// Kind classifies connector errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingHost
	KindTransport
	KindProtocol
	KindTLS
	KindInvalidProxy
	KindInvalidTarget
	KindBusy
)

var kindTypes = []struct {
	kind Kind
	typ  *errorx.Type
}{
	{KindMissingHost, ErrMissingHost},
	{KindTransport, ErrTransport},
	{KindProtocol, ErrProtocol},
	{KindTLS, ErrTLS},
	{KindInvalidProxy, ErrInvalidProxy},
	{KindInvalidTarget, ErrInvalidTarget},
	{KindBusy, ErrBusy},
}

func (k Kind) String() string {
	for _, kt := range kindTypes {
		if kt.kind == k {
			return kt.typ.FullName()
		}
	}
	return "unknown"
}

// KindOf returns the Kind of the first connector error in err's chain, or
// KindUnknown for nil and foreign errors.
func KindOf(err error) Kind {
	var xe *errorx.Error
	if !errors.As(err, &xe) {
		return KindUnknown
	}
	for _, kt := range kindTypes {
		if xe.IsOfType(kt.typ) {
			return kt.kind
		}
	}
	return KindUnknown
}

// Cause returns the error a connector error wraps, or err itself when it
// wraps nothing.
func Cause(err error) error {
	var xe *errorx.Error
	if !errors.As(err, &xe) || xe.Cause() == nil {
		return err
	}
	return xe.Cause()
}
