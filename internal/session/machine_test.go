package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateIdle

	s, ok := Transition(s, EventMediaAcquired)
	assert.True(t, ok)
	assert.Equal(t, StateCameraReady, s)

	s, ok = Transition(s, EventLinkCreated)
	assert.True(t, ok)
	assert.Equal(t, StateConnected, s)

	s, ok = Transition(s, EventOfferSent)
	assert.True(t, ok)
	assert.Equal(t, StateNegotiating, s)

	s, ok = Transition(s, EventMediaFlowing)
	assert.True(t, ok)
	assert.Equal(t, StateEstablished, s)

	s, ok = Transition(s, EventClosed)
	assert.True(t, ok)
	assert.Equal(t, StateClosed, s)
}

func TestTransitionRejectsOutOfOrderEvents(t *testing.T) {
	cases := []struct {
		state State
		event Event
	}{
		{StateIdle, EventOfferSent},
		{StateIdle, EventMediaFlowing},
		{StateCameraReady, EventMediaAcquired},
		{StateConnected, EventLinkCreated},
		{StateNegotiating, EventOfferSent},
		{StateEstablished, EventMediaFlowing},
		{StateClosed, EventMediaAcquired},
		{StateClosed, EventClosed},
	}

	for _, tc := range cases {
		next, ok := Transition(tc.state, tc.event)
		assert.False(t, ok, "%s should not accept %s", tc.state, tc.event)
		assert.Equal(t, tc.state, next)
	}
}

func TestTransitionClosableFromAnywhere(t *testing.T) {
	for _, s := range []State{StateIdle, StateCameraReady, StateConnected, StateNegotiating, StateEstablished} {
		next, ok := Transition(s, EventClosed)
		assert.True(t, ok)
		assert.Equal(t, StateClosed, next)
	}
}
