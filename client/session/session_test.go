package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_CreatorIsAdminAndInitiator(t *testing.T) {
	var s State
	s.Created("r1", "a")

	assert.True(t, s.InRoom())
	assert.True(t, s.IsAdmin)
	assert.True(t, s.IsInitiator)
	assert.False(t, s.IsReady)
	assert.False(t, s.CanConnect(true))

	s.PeerJoining()
	assert.True(t, s.CanConnect(true))
	assert.False(t, s.CanConnect(false))
}

func TestState_JoinerIsReadyNonInitiator(t *testing.T) {
	var s State
	s.Joined("r1", "b")

	assert.True(t, s.IsReady)
	assert.False(t, s.IsAdmin)
	assert.False(t, s.IsInitiator)
}

func TestState_ReadyPromotesWhenInCall(t *testing.T) {
	var s State
	s.Joined("r1", "b")

	s.Ready("b", []string{"a", "b"})
	assert.False(t, s.IsInitiator)
	assert.Equal(t, []string{"a", "b"}, s.Members)

	s.Ready("c", []string{"a", "b", "c"})
	assert.False(t, s.IsInitiator, "not in call yet")

	s.InCall = true
	s.Ready("self-ignored", nil)
	assert.True(t, s.IsInitiator)
	assert.Equal(t, []string{"a", "b", "c"}, s.Members)
}

func TestState_PeerLeftAndReset(t *testing.T) {
	var s State
	s.Joined("r1", "b")
	s.Ready("b", []string{"a", "b", "c"})

	s.PeerLeft("a")
	assert.Equal(t, []string{"b", "c"}, s.Members)
	assert.True(t, s.IsInitiator)

	s.Reset()
	assert.Equal(t, State{}, s)
	assert.False(t, s.InRoom())
}

func TestState_QueriesOnCopies(t *testing.T) {
	var s State
	s.Joined("r1", "b")
	copyOf := func() State { return s }

	assert.True(t, copyOf().InRoom())
	assert.True(t, copyOf().CanConnect(true))

	s.Reset()
	assert.False(t, copyOf().InRoom())
}
