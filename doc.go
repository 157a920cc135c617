// Package wsclient implements the client side of the WebSocket protocol
// (RFC 6455): the opening HTTP Upgrade handshake, frame encoding and
// decoding with mandatory client-side masking, and the connection
// lifecycle that ties the two together.
//
// The package does not own a transport. Callers either use the bundled
// net.Conn/tls.Conn based Transport (Dial) or supply their own
// implementation of the Transport interface — for example to drive the
// engine over an in-memory pipe in tests.
package wsclient
