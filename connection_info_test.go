package wsclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	ci, err := New("ws://example.com/socket")
	require.NoError(t, err)
	assert.False(t, ci.IsSecure())
	assert.Equal(t, "/socket", ci.ResourceName())
	assert.EqualValues(t, defaultMaxFrameSize, ci.MaxFrameSize())
	assert.Empty(t, ci.Origin())
}

func TestNewDefaultsResourceNameToSlash(t *testing.T) {
	ci, err := New("ws://example.com")
	require.NoError(t, err)
	assert.Equal(t, "/", ci.ResourceName())
}

func TestNewResourceNameIncludesQuery(t *testing.T) {
	ci, err := New("ws://example.com/socket?token=abc")
	require.NoError(t, err)
	assert.Equal(t, "/socket?token=abc", ci.ResourceName())
}

func TestNewSecureScheme(t *testing.T) {
	ci, err := New("wss://example.com/socket")
	require.NoError(t, err)
	assert.True(t, ci.IsSecure())
	assert.Equal(t, "443", ci.defaultPort())
}

func TestNewRejectsUnsupportedScheme(t *testing.T) {
	_, err := New("ftp://example.com")
	require.Error(t, err)
}

func TestHostHeaderOmitsDefaultPort(t *testing.T) {
	ci, err := New("ws://example.com:80/socket")
	require.NoError(t, err)
	assert.Equal(t, "example.com", ci.hostHeader())
}

func TestHostHeaderKeepsNonDefaultPort(t *testing.T) {
	ci, err := New("ws://example.com:9000/socket")
	require.NoError(t, err)
	assert.Equal(t, "example.com:9000", ci.hostHeader())
}

func TestHostPortFillsInSchemeDefault(t *testing.T) {
	ci, err := New("wss://example.com/socket")
	require.NoError(t, err)
	assert.Equal(t, "example.com:443", ci.hostPort())
}

func TestOptionsApply(t *testing.T) {
	ci, err := New("ws://example.com/socket",
		WithOrigin("http://example.com"),
		WithProtocols("chat", "superchat"),
		WithExtensions("permessage-deflate"),
		WithHeader("X-Custom", "value"),
		WithMaxFrameSize(4096),
	)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", ci.Origin())
	assert.Equal(t, []string{"chat", "superchat"}, ci.Protocols())
	assert.Equal(t, []string{"permessage-deflate"}, ci.Extensions())
	assert.Equal(t, []Header{{Name: "X-Custom", Value: "value"}}, ci.ExtraHeaders())
	assert.EqualValues(t, 4096, ci.MaxFrameSize())
}
