package orchestrator

import (
	"errors"
	"fmt"

	"github.com/adwski/webrtc-rooms/backend/model"
)

var ErrInvalidTransition = errors.New("invalid link state transition")

type LinkState int

const (
	LinkIdle LinkState = iota
	LinkConnecting
	LinkOfferSent
	LinkAnswerSent
	LinkConnected
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkConnecting:
		return "connecting"
	case LinkOfferSent:
		return "offer-sent"
	case LinkAnswerSent:
		return "answer-sent"
	case LinkConnected:
		return "connected"
	case LinkClosed:
		return "closed"
	}
	return fmt.Sprintf("LinkState(%d)", int(s))
}

var transitions = map[LinkState][]LinkState{
	LinkIdle:       {LinkConnecting, LinkClosed},
	LinkConnecting: {LinkOfferSent, LinkAnswerSent, LinkConnected, LinkClosed},
	LinkOfferSent:  {LinkAnswerSent, LinkConnected, LinkClosed},
	LinkAnswerSent: {LinkConnected, LinkClosed},
	LinkConnected:  {LinkClosed},
}

// Link is the connection to one remote room member.
type Link struct {
	PeerID string

	state  LinkState
	pc     PeerConnection
	stream Stream

	// offer is kept until the answer is applied so it can be resent.
	offer    *model.SessionDescription
	answered bool
}

func newLink(peerID string) *Link {
	return &Link{PeerID: peerID, state: LinkIdle}
}

func (l *Link) State() LinkState {
	return l.state
}

func (l *Link) can(to LinkState) bool {
	for _, s := range transitions[l.state] {
		if s == to {
			return true
		}
	}
	return false
}

func (l *Link) transition(to LinkState) error {
	if !l.can(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
	}
	l.state = to
	return nil
}

// close releases the native connection and the remote stream. It is idempotent.
func (l *Link) close() error {
	if l.state == LinkClosed {
		return nil
	}
	l.state = LinkClosed
	l.stream = nil
	l.offer = nil
	if l.pc == nil {
		return nil
	}
	pc := l.pc
	l.pc = nil
	return pc.Close()
}
