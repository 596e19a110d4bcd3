package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adwski/webrtc-rooms/backend/model"
)

type fakeStream string

func (s fakeStream) ID() string { return string(s) }

type fakeMedia struct {
	stream Stream
	err    error
}

func (m *fakeMedia) AcquireLocalStream(context.Context, AudioOptions, VideoOptions) (Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

type fakeSignaler struct {
	mx   sync.Mutex
	sent []model.Envelope
}

func (s *fakeSignaler) Send(env model.Envelope) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

func (s *fakeSignaler) ofType(typ string) []model.Envelope {
	s.mx.Lock()
	defer s.mx.Unlock()
	var out []model.Envelope
	for _, env := range s.sent {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

type fakePC struct {
	mx       sync.Mutex
	name     string
	handlers PeerHandlers

	offerErr  error
	answerErr error

	streams    []Stream
	local      []model.SessionDescription
	remote     []model.SessionDescription
	candidates []model.Candidate
	offers     int
	answers    int
	closed     bool

	// autoConnect reports connected once both descriptions are in place.
	autoConnect bool
}

func (pc *fakePC) AddStream(s Stream) error {
	pc.mx.Lock()
	defer pc.mx.Unlock()
	pc.streams = append(pc.streams, s)
	return nil
}

func (pc *fakePC) CreateOffer() (model.SessionDescription, error) {
	pc.mx.Lock()
	defer pc.mx.Unlock()
	if pc.offerErr != nil {
		return model.SessionDescription{}, pc.offerErr
	}
	pc.offers++
	return model.SessionDescription{Type: "offer", SDP: fmt.Sprintf("%s-offer-%d", pc.name, pc.offers)}, nil
}

func (pc *fakePC) CreateAnswer() (model.SessionDescription, error) {
	pc.mx.Lock()
	defer pc.mx.Unlock()
	if pc.answerErr != nil {
		return model.SessionDescription{}, pc.answerErr
	}
	pc.answers++
	return model.SessionDescription{Type: "answer", SDP: fmt.Sprintf("%s-answer-%d", pc.name, pc.answers)}, nil
}

func (pc *fakePC) SetLocalDescription(d model.SessionDescription) error {
	pc.mx.Lock()
	pc.local = append(pc.local, d)
	pc.mx.Unlock()

	go pc.handlers.OnICECandidate(model.Candidate{Candidate: pc.name + "-candidate"})
	pc.maybeConnect()
	return nil
}

func (pc *fakePC) SetRemoteDescription(d model.SessionDescription) error {
	pc.mx.Lock()
	pc.remote = append(pc.remote, d)
	pc.mx.Unlock()

	go pc.handlers.OnTrack(fakeStream("remote-of-" + pc.name))
	pc.maybeConnect()
	return nil
}

func (pc *fakePC) maybeConnect() {
	pc.mx.Lock()
	ready := pc.autoConnect && len(pc.local) > 0 && len(pc.remote) > 0
	pc.mx.Unlock()
	if ready {
		go pc.handlers.OnConnectionState(ConnectionStateConnected)
	}
}

func (pc *fakePC) AddICECandidate(c model.Candidate) error {
	pc.mx.Lock()
	defer pc.mx.Unlock()
	pc.candidates = append(pc.candidates, c)
	return nil
}

func (pc *fakePC) Close() error {
	pc.mx.Lock()
	defer pc.mx.Unlock()
	pc.closed = true
	return nil
}

func (pc *fakePC) isClosed() bool {
	pc.mx.Lock()
	defer pc.mx.Unlock()
	return pc.closed
}

// fire invokes a handler the way a native implementation would, outside any orchestrator call.
func (pc *fakePC) fire(cs ConnectionState) {
	pc.handlers.OnConnectionState(cs)
}

type fakeFactory struct {
	mx          sync.Mutex
	name        string
	err         error
	offerErr    error
	autoConnect bool
	pcs         []*fakePC
}

var errFactory = errors.New("factory failure")

func (f *fakeFactory) NewPeerConnection(h PeerHandlers) (PeerConnection, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	pc := &fakePC{
		name:        f.name,
		handlers:    h,
		offerErr:    f.offerErr,
		autoConnect: f.autoConnect,
	}
	f.pcs = append(f.pcs, pc)
	return pc, nil
}

func (f *fakeFactory) created() []*fakePC {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]*fakePC(nil), f.pcs...)
}
