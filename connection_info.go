package wsclient

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pion/logging"
)

// defaultMaxFrameSize bounds the 64-bit frame length field (spec.md §9:
// "reject frames larger than a configurable cap ... rather than
// attempting to allocate"). 2^31 bytes, as the spec suggests.
const defaultMaxFrameSize = 1 << 31

// Header is a single extra header sent verbatim with the opening
// handshake request (spec.md §3, ConnectionInfo.extra_headers).
type Header struct {
	Name  string
	Value string
}

// ConnectionInfo holds the immutable handshake parameters for one
// connection (spec.md §3/§4.1). It is built once via New and never
// mutated afterward.
type ConnectionInfo struct {
	url                 *url.URL
	origin              string
	resourceName        string
	isSecure            bool
	protocols           []string
	extensions          []string
	extraHeaders        []Header
	handshakeDeadlineMS int
	maxFrameSize        int64
	logger              logging.LeveledLogger
}

// Option configures a ConnectionInfo built by New.
type Option func(*ConnectionInfo)

// WithOrigin sets the Origin header sent with the handshake request.
func WithOrigin(origin string) Option {
	return func(ci *ConnectionInfo) { ci.origin = origin }
}

// WithProtocols sets the client's requested subprotocols, sent
// comma-joined as Sec-WebSocket-Protocol.
func WithProtocols(protocols ...string) Option {
	return func(ci *ConnectionInfo) { ci.protocols = append([]string(nil), protocols...) }
}

// WithExtensions sets the client's requested extensions, sent
// comma-joined as Sec-WebSocket-Extensions.
func WithExtensions(extensions ...string) Option {
	return func(ci *ConnectionInfo) { ci.extensions = append([]string(nil), extensions...) }
}

// WithHeader adds an extra header sent verbatim with the handshake
// request.
func WithHeader(name, value string) Option {
	return func(ci *ConnectionInfo) {
		ci.extraHeaders = append(ci.extraHeaders, Header{Name: name, Value: value})
	}
}

// WithHandshakeTimeoutMS bounds how long the engine waits, in
// milliseconds, for the connect+handshake sequence before failing with
// KindCouldNotEstablishConnection. Zero (the default) means no timeout,
// per spec.md §5 ("no per-operation timeouts").
func WithHandshakeTimeoutMS(ms int) Option {
	return func(ci *ConnectionInfo) { ci.handshakeDeadlineMS = ms }
}

// WithMaxFrameSize bounds the payload length this connection will
// accept from a single frame (spec.md §9 Open Question 3).
func WithMaxFrameSize(n int64) Option {
	return func(ci *ConnectionInfo) { ci.maxFrameSize = n }
}

// WithLogger sets the diagnostic logger. Defaults to a no-op logger; use
// NewLogger() for the package's default pion/logging-backed logger.
func WithLogger(logger logging.LeveledLogger) Option {
	return func(ci *ConnectionInfo) {
		if logger != nil {
			ci.logger = logger
		}
	}
}

// New parses rawURL (ws:// or wss://) and applies opts to build a
// ConnectionInfo. It does not touch the network.
func New(rawURL string, opts ...Option) (*ConnectionInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("wsclient: invalid url: %w", err)
	}

	var isSecure bool
	switch strings.ToLower(u.Scheme) {
	case "wss", "https":
		isSecure = true
	case "ws", "http":
		isSecure = false
	default:
		return nil, fmt.Errorf("wsclient: unsupported scheme %q", u.Scheme)
	}

	resourceName := u.Path
	if resourceName == "" {
		resourceName = "/"
	}
	if u.RawQuery != "" {
		resourceName += "?" + u.RawQuery
	}

	ci := &ConnectionInfo{
		url:          u,
		resourceName: resourceName,
		isSecure:     isSecure,
		maxFrameSize: defaultMaxFrameSize,
		logger:       noopLogger{},
	}
	for _, opt := range opts {
		opt(ci)
	}
	return ci, nil
}

// URL returns the parsed connection URL.
func (ci *ConnectionInfo) URL() *url.URL { return ci.url }

// IsSecure reports whether the connection should be established over
// TLS (scheme is wss or https).
func (ci *ConnectionInfo) IsSecure() bool { return ci.isSecure }

// ResourceName is the path+query of the URL, defaulting to "/"
// (spec.md §3).
func (ci *ConnectionInfo) ResourceName() string { return ci.resourceName }

// Origin returns the configured Origin header value, if any.
func (ci *ConnectionInfo) Origin() string { return ci.origin }

// Protocols returns the configured subprotocol list.
func (ci *ConnectionInfo) Protocols() []string { return ci.protocols }

// Extensions returns the configured extension list.
func (ci *ConnectionInfo) Extensions() []string { return ci.extensions }

// ExtraHeaders returns the headers sent verbatim with the handshake.
func (ci *ConnectionInfo) ExtraHeaders() []Header { return ci.extraHeaders }

// MaxFrameSize returns the configured per-frame payload cap.
func (ci *ConnectionInfo) MaxFrameSize() int64 { return ci.maxFrameSize }

// defaultPort returns the scheme's default port (spec.md §4.1: 80 for
// ws, 443 for wss).
func (ci *ConnectionInfo) defaultPort() string {
	if ci.isSecure {
		return "443"
	}
	return "80"
}

// hostHeader builds the value for the Host header, adding the port only
// when it differs from the scheme default (spec.md §4.1/§4.3 step 2).
func (ci *ConnectionInfo) hostHeader() string {
	host := ci.url.Hostname()
	port := ci.url.Port()
	if port == "" || port == ci.defaultPort() {
		return host
	}
	return host + ":" + port
}

// hostPort returns host:port suitable for net.Dial, filling in the
// scheme default port when the URL did not specify one.
func (ci *ConnectionInfo) hostPort() string {
	host := ci.url.Hostname()
	port := ci.url.Port()
	if port == "" {
		port = ci.defaultPort()
	}
	return host + ":" + port
}
