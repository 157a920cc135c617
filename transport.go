package wsclient

import (
	"bytes"
	"crypto/tls"
	"io"
	"net"
	"strings"
	"sync"
)

const netTransportReadChunk = 4096

// Transport is the byte-stream capability the engine consumes (spec.md
// §4.2/§6): connecting, readiness-driven I/O, and teardown. The
// WebSocket state machine never calls Read/ReadLine except immediately
// after observing the matching CanRead/CanReadLine.
type Transport interface {
	// Connect initiates the underlying byte stream for ci. It must
	// eventually invoke the OnConnected or OnConnectionError callback
	// exactly once.
	Connect(ci *ConnectionInfo)

	// Send makes a best-effort attempt to write all of b, returning
	// whether the whole slice was accepted.
	Send(b []byte) bool

	// Read returns up to n bytes, possibly fewer, including zero at
	// EOF. Only called when CanRead reports true.
	Read(n int) []byte

	// ReadLine returns one CRLF-terminated line, without the
	// terminator. Only called when CanReadLine reports true.
	ReadLine(max int) (string, error)

	CanRead() bool
	CanReadLine() bool
	EOF() bool

	// Close terminates the underlying stream.
	Close()

	// DiscardConnection detaches callbacks and releases any reference
	// to the underlying stream (spec.md §4.5).
	DiscardConnection()

	SetOnConnected(func())
	SetOnReadyToRead(func())
	SetOnConnectionError(func(error))
}

// netTransport is a Transport backed by a real net.Conn: plain TCP for
// ws://, TLS for wss://. A single background goroutine performs the
// actual blocking reads and serially invokes the readiness callbacks —
// that goroutine is this engine's "single logical thread" (spec.md §5);
// the host must not call Send/Close concurrently with it without its
// own synchronization.
//
// Grounded on the dial plumbing in the vitalvas-kasper client reference
// file (dialNet/doHandshake), simplified to the plain TCP/TLS case this
// engine needs — no proxy or HTTP/2 bootstrapping, both out of scope
// per spec.md §1.
type netTransport struct {
	conn net.Conn

	mu    sync.Mutex
	buf   []byte
	eof   bool
	rdErr error

	onConnected       func()
	onReadyToRead     func()
	onConnectionError func(error)
}

// Dial returns a Transport that connects over plain TCP or TLS
// according to ConnectionInfo.IsSecure.
func Dial() Transport {
	return &netTransport{}
}

func (t *netTransport) SetOnConnected(f func())            { t.onConnected = f }
func (t *netTransport) SetOnReadyToRead(f func())          { t.onReadyToRead = f }
func (t *netTransport) SetOnConnectionError(f func(error)) { t.onConnectionError = f }

func (t *netTransport) Connect(ci *ConnectionInfo) {
	go t.run(ci)
}

func (t *netTransport) run(ci *ConnectionInfo) {
	conn, err := net.Dial("tcp", ci.hostPort())
	if err != nil {
		if t.onConnectionError != nil {
			t.onConnectionError(newError(KindCouldNotEstablishConnection, "dialing transport", err))
		}
		return
	}

	if ci.IsSecure() {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: ci.URL().Hostname()})
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			if t.onConnectionError != nil {
				t.onConnectionError(newError(KindCouldNotEstablishConnection, "TLS handshake", err))
			}
			return
		}
		conn = tlsConn
	}
	t.conn = conn

	if t.onConnected != nil {
		t.onConnected()
	}

	chunk := make([]byte, netTransportReadChunk)
	for {
		n, readErr := conn.Read(chunk)
		if n > 0 {
			t.mu.Lock()
			t.buf = append(t.buf, chunk[:n]...)
			t.mu.Unlock()
			if t.onReadyToRead != nil {
				t.onReadyToRead()
			}
		}
		if readErr != nil {
			t.mu.Lock()
			t.eof = true
			t.rdErr = readErr
			t.mu.Unlock()
			if t.onReadyToRead != nil {
				t.onReadyToRead()
			}
			return
		}
	}
}

func (t *netTransport) Send(b []byte) bool {
	if t.conn == nil {
		return false
	}
	_, err := t.conn.Write(b)
	return err == nil
}

func (t *netTransport) Read(n int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > len(t.buf) {
		n = len(t.buf)
	}
	out := make([]byte, n)
	copy(out, t.buf[:n])
	t.buf = t.buf[n:]
	return out
}

func (t *netTransport) ReadLine(max int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := bytes.IndexByte(t.buf, '\n')
	if idx < 0 {
		return "", io.ErrNoProgress
	}
	if idx+1 > max {
		return "", newError(KindConnectionUpgradeFailed, "handshake line exceeds maximum length", nil)
	}
	line := t.buf[:idx+1]
	t.buf = t.buf[idx+1:]
	return strings.TrimRight(string(line), "\r\n"), nil
}

func (t *netTransport) CanRead() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf) > 0
}

func (t *netTransport) CanReadLine() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.IndexByte(t.buf, '\n') >= 0
}

// EOF reports whether the underlying stream has hit end-of-file or a
// read error, independent of whatever bytes are still sitting in buf.
// A caller that only drains via ReadLine (the handshake parser) can
// otherwise leave a dangling, unterminated line buffered forever; EOF
// must stay true in that case so the engine can still notice the
// stream is dead instead of waiting for a line that will never arrive.
func (t *netTransport) EOF() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eof
}

func (t *netTransport) Close() {
	if t.conn != nil {
		t.conn.Close()
	}
}

func (t *netTransport) DiscardConnection() {
	t.onConnected = nil
	t.onReadyToRead = nil
	t.onConnectionError = nil
	if t.conn != nil {
		t.conn.Close()
	}
}
