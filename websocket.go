package wsclient

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nuid"
	"github.com/pion/logging"
)

// netReadChunk bounds a single Transport.Read call while draining frames;
// the loop keeps calling until CanRead reports false, so its exact size
// only affects how many Read calls a large burst takes.
const netReadChunk = 65536

// maxHandshakeLineLength bounds a single response header line (spec.md
// §4.2 read_line(max)); a server sending something longer than this is
// already violating the handshake's own line-oriented framing.
const maxHandshakeLineLength = 8192

// WebSocket is the client-side protocol state machine (spec.md §2/§4.5).
// It exclusively owns a Transport from Start until the connection
// reaches a terminal state, drives the opening handshake, and
// thereafter decodes and encodes frames, delivering whole messages to
// the host through the On* callback slots. New: spec.md §4.5's
// transition table has no teacher analogue; the wiring of
// ConnectionInfo/Transport/handshake/frame into one driver follows the
// shape of crocsoc's ServeConn loop (deleted, see DESIGN.md) without
// reusing its body, since that loop was server-role and blocking.
type WebSocket struct {
	id   string
	info *ConnectionInfo
	log  logging.LeveledLogger

	// mu guards transport, state, and handshakeTimer, which are written
	// both from the transport's single read-pump goroutine (via the
	// On* handlers below) and, if WithHandshakeTimeoutMS is set, from
	// the independent goroutine time.AfterFunc runs handshakeTimedOut
	// on. Everything else (nonce, hs, rx, lastClose*) is only ever
	// touched from the read-pump goroutine and needs no lock.
	mu             sync.Mutex
	transport      Transport
	state          internalState
	handshakeTimer *time.Timer

	nonce string
	hs    *handshakeResponseParser
	rx    []byte // undecoded inbound bytes, carried across on_ready_to_read events

	lastCloseCode   uint16
	lastCloseReason string

	// OnOpen, OnMessage, OnError, and OnClose are the host-visible
	// callback slots (spec.md §4.5). Calling a nil slot is a no-op, and
	// at most one of OnError/OnClose ever fires for a connection,
	// always preceded by at most one OnOpen (spec.md §7/§8 invariant 1).
	OnOpen    func()
	OnMessage func(Message)
	OnError   func(*Error)
	OnClose   func(code uint16, reason string, wasClean bool)
}

// Create builds a WebSocket bound to ci, in state NotStarted. The
// per-connection id (nuid, mirroring nats-server's pervasive per-client
// cid) is generated once here and threaded through every log line.
func Create(ci *ConnectionInfo) *WebSocket {
	return &WebSocket{
		id:            nuid.Next(),
		info:          ci,
		log:           ci.logger,
		state:         stateNotStarted,
		lastCloseCode: CloseNoStatusReceived,
	}
}

// ID returns the connection's correlation id, useful for cross-referencing
// the diagnostic log stream.
func (ws *WebSocket) ID() string { return ws.id }

// ReadyState returns the host-visible, coarse-grained lifecycle state
// (spec.md §3/§4.5, §8 invariant 6).
func (ws *WebSocket) ReadyState() ReadyState {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.state.readyState()
}

// Start begins connecting over a default net.Dial/tls.Dial Transport
// (spec.md §6 host API). NotStarted ⇒ EstablishingProtocolConnection.
func (ws *WebSocket) Start() error {
	return ws.StartWith(Dial())
}

// StartWith begins connecting using an explicitly supplied Transport,
// letting a host (or a test) substitute a net.Pipe-backed fake for the
// default netTransport while keeping the same Start semantics.
func (ws *WebSocket) StartWith(t Transport) error {
	ws.mu.Lock()
	if ws.state != stateNotStarted {
		ws.mu.Unlock()
		return fmt.Errorf("wsclient: Start called in state %s", ws.state)
	}
	ws.transport = t
	ws.state = stateEstablishingProtocolConnection
	ws.armHandshakeTimer()
	ws.mu.Unlock()

	ws.log.Debugf("[%s] starting, resource=%s", ws.id, ws.info.ResourceName())

	t.SetOnConnected(ws.handleConnected)
	t.SetOnReadyToRead(ws.handleReadyToRead)
	t.SetOnConnectionError(ws.handleConnectionError)
	t.Connect(ws.info)
	return nil
}

// armHandshakeTimer starts the handshake watchdog configured via
// WithHandshakeTimeoutMS (connection_info.go), if any. Callers must
// hold ws.mu.
func (ws *WebSocket) armHandshakeTimer() {
	if ws.info.handshakeDeadlineMS <= 0 {
		return
	}
	d := time.Duration(ws.info.handshakeDeadlineMS) * time.Millisecond
	ws.handshakeTimer = time.AfterFunc(d, ws.handshakeTimedOut)
}

// stopHandshakeTimer cancels the watchdog armed by armHandshakeTimer,
// if any is still pending. Callers must hold ws.mu.
func (ws *WebSocket) stopHandshakeTimer() {
	if ws.handshakeTimer != nil {
		ws.handshakeTimer.Stop()
		ws.handshakeTimer = nil
	}
}

// handshakeTimedOut fires on its own goroutine (time.AfterFunc), never
// the transport's read-pump goroutine. It only ever raises a fatal
// error while the connection is still short of Open, so a timer that
// fires in the narrow window around a handshake completing concurrently
// is not expected to undo a connection that has already opened.
func (ws *WebSocket) handshakeTimedOut() {
	ws.mu.Lock()
	stillConnecting := !ws.state.isTerminal() && ws.state != stateOpen && ws.state != stateClosing
	ws.mu.Unlock()
	if !stillConnecting {
		return
	}
	ws.fatalError(newError(KindCouldNotEstablishConnection, "handshake did not complete within the configured timeout", nil))
}

// Send transmits msg as one unfragmented Text or Binary frame (spec.md
// §4.4 "public send operations"). It is a no-op returning false outside
// state Open.
func (ws *WebSocket) Send(msg Message) bool {
	ws.mu.Lock()
	if ws.state != stateOpen {
		ws.mu.Unlock()
		return false
	}
	transport := ws.transport
	ws.mu.Unlock()

	op := opBinary
	if msg.IsText {
		op = opText
	}
	buf, err := encodeFrame(op, msg.Payload, true)
	if err != nil {
		ws.log.Errorf("[%s] encoding outbound frame: %s", ws.id, err)
		return false
	}
	return transport.Send(buf)
}

// Close sends one Close frame carrying code and reason and transitions
// Open → Closing immediately (spec.md §4.4 "public send operations",
// §4.5 "Open ⇒send()/close() Open/Closing"). Final on_close delivery
// still awaits transport EOF; it does not require the server's Close
// echo to have arrived first.
func (ws *WebSocket) Close(code uint16, reason string) bool {
	ws.mu.Lock()
	if ws.state != stateOpen {
		ws.mu.Unlock()
		return false
	}
	ws.state = stateClosing
	transport := ws.transport
	ws.mu.Unlock()

	buf, err := encodeFrame(opClose, encodeCloseFramePayload(code, reason), true)
	if err != nil {
		ws.log.Errorf("[%s] encoding close frame: %s", ws.id, err)
		return false
	}
	ok := transport.Send(buf)
	ws.log.Debugf("[%s] close(%d, %q) sent, state=Closing", ws.id, code, reason)
	return ok
}

func (ws *WebSocket) handleConnected() {
	ws.mu.Lock()
	if ws.state != stateEstablishingProtocolConnection {
		ws.mu.Unlock()
		return
	}
	ws.state = stateSendingClientHandshake
	transport := ws.transport
	ws.mu.Unlock()

	ws.log.Debugf("[%s] transport connected, sending handshake", ws.id)

	var req bytes.Buffer
	nonce, err := buildHandshakeRequest(&req, ws.info)
	if err != nil {
		ws.fatalError(newError(KindCouldNotEstablishConnection, "building handshake request", err))
		return
	}
	ws.nonce = nonce
	ws.hs = newHandshakeResponseParser(nonce, ws.info)

	if !transport.Send(req.Bytes()) {
		ws.fatalError(newError(KindCouldNotEstablishConnection, "writing handshake request", nil))
		return
	}

	ws.mu.Lock()
	// A concurrent fatalError (e.g. the handshake timer firing in this
	// narrow window) must win rather than be stomped back to Waiting.
	if ws.state == stateSendingClientHandshake {
		ws.state = stateWaitingForServerHandshake
	}
	ws.mu.Unlock()
	ws.log.Debugf("[%s] handshake sent, waiting for server response", ws.id)
}

func (ws *WebSocket) handleConnectionError(err error) {
	ws.mu.Lock()
	terminal := ws.state.isTerminal()
	ws.mu.Unlock()
	if terminal {
		return
	}
	ws.fatalError(asEngineError(err, KindCouldNotEstablishConnection, "transport connection error"))
}

func (ws *WebSocket) handleReadyToRead() {
	ws.mu.Lock()
	state := ws.state
	ws.mu.Unlock()

	switch state {
	case stateWaitingForServerHandshake:
		ws.drainHandshake()
	case stateOpen, stateClosing:
		ws.drainFrames()
	}
}

// drainHandshake feeds the server's response to ws.hs one line at a
// time, suspending (simply returning) whenever no full line is yet
// buffered, per spec.md §4.3's "line-driven, restartable" parsing.
func (ws *WebSocket) drainHandshake() {
	ws.mu.Lock()
	transport := ws.transport
	ws.mu.Unlock()
	if transport == nil {
		return
	}

	for transport.CanReadLine() {
		line, err := transport.ReadLine(maxHandshakeLineLength)
		if err != nil {
			ws.fatalError(asEngineError(err, KindConnectionUpgradeFailed, "reading handshake line"))
			return
		}

		done, hsErr := ws.hs.feedLine(line)
		if hsErr != nil {
			ws.fatalError(asEngineError(hsErr, KindConnectionUpgradeFailed, "parsing handshake response"))
			return
		}
		if done {
			ws.mu.Lock()
			ws.state = stateOpen
			ws.stopHandshakeTimer()
			ws.mu.Unlock()
			ws.log.Debugf("[%s] handshake complete, state=Open", ws.id)
			if ws.OnOpen != nil {
				ws.OnOpen()
			}
			// Bytes belonging to the first frame may already follow the
			// handshake's terminating CRLF in the same TCP segment.
			ws.drainFrames()
			return
		}
	}

	// transport.EOF() reports read-EOF on its own, regardless of
	// whatever is left in its buffer: a server that closes mid-line
	// leaves an unterminated trailing line there forever, and
	// CanReadLine() above will never see it as complete, so this check
	// must not also require the buffer to be drained to notice the
	// stream died (spec.md §8 invariant 1 — a dead connection must
	// still reach on_error/on_close, not hang).
	if transport.EOF() {
		ws.fatalError(newError(KindConnectionUpgradeFailed, "connection closed before handshake completed", nil))
	}
}

// drainFrames pulls everything the transport currently has buffered,
// decodes as many complete frames as are available, and dispatches
// them in order. An incomplete trailing frame is left in ws.rx for the
// next on_ready_to_read (spec.md §4.4 step 5).
func (ws *WebSocket) drainFrames() {
	ws.mu.Lock()
	transport := ws.transport
	ws.mu.Unlock()
	if transport == nil {
		return
	}

	for transport.CanRead() {
		chunk := transport.Read(netReadChunk)
		if len(chunk) == 0 {
			break
		}
		ws.rx = append(ws.rx, chunk...)
	}

	frames, rest, err := decodeFrames(ws.rx, ws.info.MaxFrameSize())
	if err != nil {
		ws.fatalError(asEngineError(err, KindProtocolError, "decoding frame"))
		return
	}
	ws.rx = rest

	for _, f := range frames {
		ws.mu.Lock()
		state := ws.state
		ws.mu.Unlock()
		if state != stateOpen && state != stateClosing {
			return
		}
		if !ws.dispatchFrame(f, transport) {
			return
		}
	}

	if transport.EOF() {
		ws.handleTransportEOF(transport)
	}
}

// dispatchFrame applies one decoded frame's effect (spec.md §4.4 step
// 7). It returns false when it already drove the connection to a
// terminal state, telling the caller to stop processing the batch.
func (ws *WebSocket) dispatchFrame(f *frame, transport Transport) bool {
	if !f.fin || f.opcode == opContinuation {
		// Fragmentation is explicitly unsupported (spec.md §1/§4.4); see
		// DESIGN.md Open Question 1 for why this fails cleanly instead
		// of reassembling.
		ws.fatalError(newError(KindProtocolError, "fragmented messages are not supported", nil))
		return false
	}

	switch f.opcode {
	case opText:
		if ws.OnMessage != nil {
			ws.OnMessage(Message{Payload: f.payload, IsText: true})
		}
	case opBinary:
		if ws.OnMessage != nil {
			ws.OnMessage(Message{Payload: f.payload, IsText: false})
		}
	case opPing:
		ws.log.Tracef("[%s] ping received, replying pong", ws.id)
		ws.sendControlFrame(transport, opPong, f.payload)
	case opPong:
		ws.log.Tracef("[%s] pong received", ws.id)
	case opClose:
		code, reason := decodeClosePayload(f.payload)
		ws.lastCloseCode = code
		ws.lastCloseReason = reason
		ws.mu.Lock()
		if ws.state == stateOpen {
			ws.state = stateClosing
		}
		ws.mu.Unlock()
		ws.log.Debugf("[%s] close frame received, code=%d state=Closing", ws.id, code)
	default:
		ws.log.Warnf("[%s] ignoring unknown opcode %d", ws.id, f.opcode)
	}
	return true
}

// sendControlFrame replies to an inbound control frame (currently only
// Ping→Pong, spec.md §4.4). A local encode failure here is not a
// connection-level fault, so it is logged rather than raised through
// fatal_error/on_error.
func (ws *WebSocket) sendControlFrame(transport Transport, op opcode, payload []byte) {
	buf, err := encodeFrame(op, payload, true)
	if err != nil {
		ws.log.Errorf("[%s] encoding control frame: %s", ws.id, err)
		return
	}
	transport.Send(buf)
}

// handleTransportEOF implements spec.md §4.4 step 1 and the
// Closing→Closed transition: EOF at a frame boundary (nothing left
// undecoded in ws.rx) is a clean close; EOF with a partial frame still
// pending is ServerClosedSocket (spec.md §7, §8 scenario 6).
func (ws *WebSocket) handleTransportEOF(transport Transport) {
	ws.mu.Lock()
	if ws.state.isTerminal() {
		ws.mu.Unlock()
		return
	}
	if len(ws.rx) > 0 {
		ws.mu.Unlock()
		ws.fatalError(newError(KindServerClosedSocket, "connection closed while reading frame payload", nil))
		return
	}

	ws.state = stateClosed
	ws.stopHandshakeTimer()
	ws.transport = nil
	code, reason := ws.lastCloseCode, ws.lastCloseReason
	ws.mu.Unlock()

	ws.log.Debugf("[%s] transport EOF at frame boundary, state=Closed", ws.id)
	if ws.OnClose != nil {
		ws.OnClose(code, reason, true)
	}
	transport.DiscardConnection()
}

// fatalError implements spec.md §4.5 fatal_error: Errored, on_error,
// discard. It is idempotent against a connection already terminal, the
// one guarantee that keeps it safe to call concurrently from both the
// transport's read-pump goroutine and the handshake-timeout timer.
func (ws *WebSocket) fatalError(err *Error) {
	ws.mu.Lock()
	if ws.state.isTerminal() {
		ws.mu.Unlock()
		return
	}
	ws.state = stateErrored
	ws.stopHandshakeTimer()
	transport := ws.transport
	ws.transport = nil
	ws.mu.Unlock()

	ws.log.Errorf("[%s] fatal error: %s", ws.id, err)
	if ws.OnError != nil {
		ws.OnError(err)
	}
	if transport != nil {
		transport.DiscardConnection()
	}
}

// asEngineError passes an already-classified *Error through unchanged
// and wraps anything else (typically a raw transport/os error) under
// kind, preserving it as Unwrap()-able via Cause.
func asEngineError(err error, kind Kind, message string) *Error {
	if err == nil {
		return newError(kind, message, nil)
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(kind, message, err)
}
