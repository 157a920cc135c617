package wsclient

import "fmt"

// Kind classifies why a connection failed. See spec.md §7.
type Kind int

const (
	// KindCouldNotEstablishConnection means the connection was not
	// established: the transport reported a connection error before the
	// handshake completed, the handshake request could not be built or
	// written, or the WithHandshakeTimeoutMS timeout expired first.
	KindCouldNotEstablishConnection Kind = iota
	// KindConnectionUpgradeFailed means the server's HTTP response was
	// not a valid, matching 101 Switching Protocols upgrade.
	KindConnectionUpgradeFailed
	// KindServerClosedSocket means the transport hit EOF in the middle
	// of a frame (a truncated read).
	KindServerClosedSocket
	// KindClientDisconnected is reserved for a future host-initiated
	// abort; the engine itself never raises it.
	KindClientDisconnected
	// KindProtocolError covers framing-level protocol violations this
	// core refuses to recover from: fragmented messages (continuation
	// frames / fin=0, explicitly unsupported per spec.md §1/§4.4) and
	// frames whose declared length exceeds the configured cap.
	KindProtocolError
)

func (k Kind) String() string {
	switch k {
	case KindCouldNotEstablishConnection:
		return "could not establish connection"
	case KindConnectionUpgradeFailed:
		return "connection upgrade failed"
	case KindServerClosedSocket:
		return "server closed socket"
	case KindClientDisconnected:
		return "client disconnected"
	case KindProtocolError:
		return "protocol error"
	default:
		return "unknown error"
	}
}

// Error is the host-visible failure type delivered to on_error. It wraps
// the underlying cause, if any, so callers can use errors.Is/errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}
