package wsclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadyStateMapping(t *testing.T) {
	cases := []struct {
		state internalState
		want  ReadyState
	}{
		{stateNotStarted, Connecting},
		{stateEstablishingProtocolConnection, Connecting},
		{stateSendingClientHandshake, Connecting},
		{stateWaitingForServerHandshake, Connecting},
		{stateOpen, Open},
		{stateClosing, Closing},
		{stateClosed, Closed},
		{stateErrored, Closed},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.state.readyState(), "state %s", c.state)
	}
}

func TestReadyStateIsMonotone(t *testing.T) {
	order := []ReadyState{Connecting, Open, Closing, Closed}
	for i, s := range order {
		assert.Equal(t, i, int(s), "ReadyState ordinal for %s", s)
	}
}

func TestInternalStateIsTerminal(t *testing.T) {
	terminal := []internalState{stateClosed, stateErrored}
	nonTerminal := []internalState{
		stateNotStarted, stateEstablishingProtocolConnection,
		stateSendingClientHandshake, stateWaitingForServerHandshake,
		stateOpen, stateClosing,
	}
	for _, s := range terminal {
		assert.True(t, s.isTerminal(), "%s should be terminal", s)
	}
	for _, s := range nonTerminal {
		assert.False(t, s.isTerminal(), "%s should not be terminal", s)
	}
}
