package wsclient

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// acceptGUID is concatenated onto the client's nonce before hashing to
// produce the expected Sec-WebSocket-Accept value (spec.md §4.3, RFC
// 6455 §1.3).
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// acceptKey computes Base64(SHA1(nonce + acceptGUID)). Adapted from
// crocsoc/crocsoc/handshake.go's SecAcceptSha, which computed the
// identical hash for the server's side of the handshake; the client
// reuses the same computation to verify the server's answer instead of
// producing it (spec.md §4.3, §8 invariant 5).
func acceptKey(nonce string) string {
	h := sha1.New()
	io.WriteString(h, strings.TrimSpace(nonce))
	io.WriteString(h, acceptGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// buildHandshakeRequest writes the client's opening HTTP Upgrade request
// per spec.md §4.3 steps 1-7, returning the nonce it generated so the
// caller can later verify Sec-WebSocket-Accept.
func buildHandshakeRequest(w io.Writer, ci *ConnectionInfo) (nonce string, err error) {
	nonce, err = generateNonce()
	if err != nil {
		return "", fmt.Errorf("wsclient: generating handshake nonce: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", ci.ResourceName())
	fmt.Fprintf(&b, "Host: %s\r\n", ci.hostHeader())
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", nonce)

	if ci.Origin() != "" {
		fmt.Fprintf(&b, "Origin: %s\r\n", ci.Origin())
	}
	if protocols := ci.Protocols(); len(protocols) > 0 {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", strings.Join(protocols, ", "))
	}
	if extensions := ci.Extensions(); len(extensions) > 0 {
		fmt.Fprintf(&b, "Sec-WebSocket-Extensions: %s\r\n", strings.Join(extensions, ", "))
	}
	for _, h := range ci.ExtraHeaders() {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	b.WriteString("\r\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return "", err
	}
	return nonce, nil
}

// handshakeResponseParser validates the server's HTTP response
// line-by-line, suspendable between any two lines (spec.md §4.3
// "response parsing (line-driven, restartable)"). The caller feeds it
// one line at a time (without the CRLF terminator) as the transport
// makes them available.
type handshakeResponseParser struct {
	nonce string
	ci    *ConnectionInfo

	sawStatusLine bool
	sawUpgrade    bool
	sawConnection bool
	sawAccept     bool
	done          bool
}

func newHandshakeResponseParser(nonce string, ci *ConnectionInfo) *handshakeResponseParser {
	return &handshakeResponseParser{nonce: nonce, ci: ci}
}

// feedLine processes one line of the response. It returns done=true once
// the handshake has either succeeded (err==nil) or fatally failed
// (err!=nil); the caller must stop calling feedLine after that.
func (p *handshakeResponseParser) feedLine(line string) (done bool, err error) {
	if !p.sawStatusLine {
		p.sawStatusLine = true
		if err := p.parseStatusLine(line); err != nil {
			return true, err
		}
		return false, nil
	}

	if strings.TrimSpace(line) == "" {
		// Terminating empty line: require that the mandatory headers
		// were all seen (spec.md §4.3).
		if !p.sawUpgrade || !p.sawConnection || !p.sawAccept {
			return true, newError(KindConnectionUpgradeFailed, "response missing a mandatory upgrade header", nil)
		}
		p.done = true
		return true, nil
	}

	name, value, ok := splitHeaderLine(line)
	if !ok {
		return true, newError(KindConnectionUpgradeFailed, fmt.Sprintf("malformed header line %q", line), nil)
	}
	return false, p.applyHeader(name, value)
}

func (p *handshakeResponseParser) parseStatusLine(line string) error {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return newError(KindConnectionUpgradeFailed, fmt.Sprintf("malformed status line %q", line), nil)
	}
	if fields[0] != "HTTP/1.1" {
		return newError(KindConnectionUpgradeFailed, fmt.Sprintf("unsupported HTTP version %q", fields[0]), nil)
	}
	status, err := strconv.Atoi(fields[1])
	if err != nil {
		return newError(KindConnectionUpgradeFailed, fmt.Sprintf("malformed status code %q", fields[1]), err)
	}
	if status != 101 {
		return newError(KindConnectionUpgradeFailed, fmt.Sprintf("server returned status %d, expected 101", status), nil)
	}
	return nil
}

func (p *handshakeResponseParser) applyHeader(name, value string) error {
	switch strings.ToLower(name) {
	case "upgrade":
		if !strings.EqualFold(strings.TrimSpace(value), "websocket") {
			return newError(KindConnectionUpgradeFailed, fmt.Sprintf("unexpected Upgrade value %q", value), nil)
		}
		p.sawUpgrade = true
	case "connection":
		if !httpguts.HeaderValuesContainsToken([]string{value}, "Upgrade") {
			return newError(KindConnectionUpgradeFailed, fmt.Sprintf("Connection header %q does not contain Upgrade", value), nil)
		}
		p.sawConnection = true
	case "sec-websocket-accept":
		if strings.TrimSpace(value) != acceptKey(p.nonce) {
			return newError(KindConnectionUpgradeFailed, "Sec-WebSocket-Accept does not match the expected value", nil)
		}
		p.sawAccept = true
	case "sec-websocket-extensions":
		for _, token := range splitTokens(value) {
			if !containsFold(p.ci.Extensions(), token) {
				return newError(KindConnectionUpgradeFailed, fmt.Sprintf("server negotiated unrequested extension %q", token), nil)
			}
		}
	case "sec-websocket-protocol":
		for _, token := range splitTokens(value) {
			if !containsFold(p.ci.Protocols(), token) {
				return newError(KindConnectionUpgradeFailed, fmt.Sprintf("server negotiated unrequested subprotocol %q", token), nil)
			}
		}
	}
	return nil
}

// splitHeaderLine splits a "Name: Value" line on the first colon,
// trimming surrounding whitespace from the value (spec.md §4.3).
func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], strings.TrimSpace(line[idx+1:]), true
}

// splitTokens splits a comma-separated header value into trimmed tokens.
func splitTokens(value string) []string {
	parts := strings.Split(value, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
