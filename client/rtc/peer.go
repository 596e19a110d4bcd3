// Package rtc adapts pion peer connections to the orchestrator.
package rtc

import (
	"errors"
	"sync"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/client/orchestrator"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const rtpBufferSize = 1500

var ErrEmptyCandidate = errors.New("empty ice candidate")

type (
	Config struct {
		Logger     *zerolog.Logger
		ICEServers []model.ICEServer
	}

	Factory struct {
		config webrtc.Configuration
		logger zerolog.Logger
	}

	peerConnection struct {
		pc *webrtc.PeerConnection

		mx     sync.Mutex
		remote map[string]*RemoteStream

		logger zerolog.Logger
	}
)

func NewFactory(cfg Config) *Factory {
	return &Factory{
		config: webrtc.Configuration{ICEServers: ICEServers(cfg.ICEServers)},
		logger: cfg.Logger.With().Str("component", "rtc").Logger(),
	}
}

// NewPeerConnection creates a pion peer connection. Every handler runs in its own
// goroutine so it may call back into the orchestrator.
func (f *Factory) NewPeerConnection(h orchestrator.PeerHandlers) (orchestrator.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}
	p := &peerConnection{
		pc:     pc,
		remote: make(map[string]*RemoteStream),
		logger: f.logger,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering complete
		}
		go h.OnICECandidate(fromICECandidateInit(c.ToJSON()))
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Debug().Str("state", s.String()).Msg("peer connection state")
		if cs, ok := toConnectionState(s); ok {
			go h.OnConnectionState(cs)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if stream, isNew := p.addRemote(track); isNew {
			go h.OnTrack(stream)
		}
		go p.drain(track)
	})
	return p, nil
}

func (p *peerConnection) addRemote(track *webrtc.TrackRemote) (*RemoteStream, bool) {
	p.mx.Lock()
	defer p.mx.Unlock()

	id := track.StreamID()
	s, ok := p.remote[id]
	if !ok {
		s = &RemoteStream{id: id}
		p.remote[id] = s
	}
	s.add(track)
	return s, !ok
}

// drain reads the remote track until it ends so pion buffers never fill up.
func (p *peerConnection) drain(track *webrtc.TrackRemote) {
	buf := make([]byte, rtpBufferSize)
	for {
		if _, _, err := track.Read(buf); err != nil {
			p.logger.Trace().Err(err).Str("track", track.ID()).Msg("remote track ended")
			return
		}
	}
}

func (p *peerConnection) AddStream(s orchestrator.Stream) error {
	ls, ok := s.(*LocalStream)
	if !ok {
		return ErrUnsupportedStream
	}
	for _, t := range ls.tracks {
		sender, err := p.pc.AddTrack(t)
		if err != nil {
			return err
		}
		go func() {
			buf := make([]byte, rtpBufferSize)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (p *peerConnection) CreateOffer() (model.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return model.SessionDescription{}, err
	}
	return fromSessionDescription(offer), nil
}

func (p *peerConnection) CreateAnswer() (model.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return model.SessionDescription{}, err
	}
	return fromSessionDescription(answer), nil
}

func (p *peerConnection) SetLocalDescription(d model.SessionDescription) error {
	desc, err := toSessionDescription(d)
	if err != nil {
		return err
	}
	return p.pc.SetLocalDescription(desc)
}

func (p *peerConnection) SetRemoteDescription(d model.SessionDescription) error {
	desc, err := toSessionDescription(d)
	if err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(desc)
}

func (p *peerConnection) AddICECandidate(c model.Candidate) error {
	if c.Candidate == "" {
		return ErrEmptyCandidate
	}
	return p.pc.AddICECandidate(toICECandidateInit(c))
}

func (p *peerConnection) Close() error {
	return p.pc.Close()
}
