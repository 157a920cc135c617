package wsclient

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The RFC 6455 §1.3 worked example: this exact key/accept pair appears
// in the teacher's own handshake_test.go fixtures.
const (
	rfcExampleKey    = "dGhlIHNhbXBsZSBub25jZQ=="
	rfcExampleAccept = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
)

func TestAcceptKeyMatchesRFCExample(t *testing.T) {
	assert.Equal(t, rfcExampleAccept, acceptKey(rfcExampleKey))
}

func TestBuildHandshakeRequest(t *testing.T) {
	ci, err := New("ws://server.example.com/chat", WithOrigin("http://example.com"), WithProtocols("chat", "superchat"))
	require.NoError(t, err)

	var buf bytes.Buffer
	nonce, err := buildHandshakeRequest(&buf, ci)
	require.NoError(t, err)
	assert.NotEmpty(t, nonce)

	req := buf.String()
	assert.True(t, strings.HasPrefix(req, "GET /chat HTTP/1.1\r\n"))
	assert.Contains(t, req, "Host: server.example.com\r\n")
	assert.Contains(t, req, "Upgrade: websocket\r\n")
	assert.Contains(t, req, "Connection: Upgrade\r\n")
	assert.Contains(t, req, "Sec-WebSocket-Key: "+nonce+"\r\n")
	assert.Contains(t, req, "Origin: http://example.com\r\n")
	assert.Contains(t, req, "Sec-WebSocket-Protocol: chat, superchat\r\n")
	assert.Contains(t, req, "Sec-WebSocket-Version: 13\r\n")
	assert.True(t, strings.HasSuffix(req, "\r\n\r\n"))
}

func TestBuildHandshakeRequestNonDefaultPort(t *testing.T) {
	ci, err := New("ws://example.com:9000/")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = buildHandshakeRequest(&buf, ci)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Host: example.com:9000\r\n")
}

func feedAll(t *testing.T, p *handshakeResponseParser, lines []string) error {
	t.Helper()
	for _, line := range lines {
		done, err := p.feedLine(line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	t.Fatalf("parser did not reach done after %d lines", len(lines))
	return nil
}

func TestHandshakeResponseParserHappyPath(t *testing.T) {
	ci, err := New("ws://server.example.com/chat")
	require.NoError(t, err)
	p := newHandshakeResponseParser(rfcExampleKey, ci)

	err = feedAll(t, p, []string{
		"HTTP/1.1 101 Switching Protocols",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: " + rfcExampleAccept,
		"",
	})
	require.NoError(t, err)
	assert.True(t, p.done)
}

func TestHandshakeResponseParserBadStatus(t *testing.T) {
	ci, err := New("ws://server.example.com/chat")
	require.NoError(t, err)
	p := newHandshakeResponseParser(rfcExampleKey, ci)

	err = feedAll(t, p, []string{"HTTP/1.1 404 Not Found"})
	require.Error(t, err)
	assert.Equal(t, KindConnectionUpgradeFailed, err.(*Error).Kind)
}

func TestHandshakeResponseParserBadAccept(t *testing.T) {
	ci, err := New("ws://server.example.com/chat")
	require.NoError(t, err)
	p := newHandshakeResponseParser(rfcExampleKey, ci)

	err = feedAll(t, p, []string{
		"HTTP/1.1 101 Switching Protocols",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: wrong",
	})
	require.Error(t, err)
	assert.Equal(t, KindConnectionUpgradeFailed, err.(*Error).Kind)
}

func TestHandshakeResponseParserMissingHeader(t *testing.T) {
	ci, err := New("ws://server.example.com/chat")
	require.NoError(t, err)
	p := newHandshakeResponseParser(rfcExampleKey, ci)

	err = feedAll(t, p, []string{
		"HTTP/1.1 101 Switching Protocols",
		"Upgrade: websocket",
		"",
	})
	require.Error(t, err)
	assert.Equal(t, KindConnectionUpgradeFailed, err.(*Error).Kind)
}

func TestHandshakeResponseParserRejectsUnrequestedExtension(t *testing.T) {
	ci, err := New("ws://server.example.com/chat")
	require.NoError(t, err)
	p := newHandshakeResponseParser(rfcExampleKey, ci)

	err = feedAll(t, p, []string{
		"HTTP/1.1 101 Switching Protocols",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: " + rfcExampleAccept,
		"Sec-WebSocket-Extensions: permessage-deflate",
	})
	require.Error(t, err)
	assert.Equal(t, KindConnectionUpgradeFailed, err.(*Error).Kind)
}
