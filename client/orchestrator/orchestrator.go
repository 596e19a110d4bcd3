package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/client/session"
	"github.com/rs/zerolog"
)

const defaultEventBuffer = 64

var (
	ErrMediaAcquisition       = errors.New("cannot get local media")
	ErrPeerConnectionCreation = errors.New("peer connection failed")
	ErrSessionDescription     = errors.New("session description error")
	ErrICECandidate           = errors.New("ice candidate error")
	ErrNotInRoom              = errors.New("not in a room")
)

type (
	// Stream is an opaque media stream handle.
	Stream interface {
		ID() string
	}

	ConnectionState string

	PeerHandlers struct {
		OnICECandidate    func(model.Candidate)
		OnTrack           func(Stream)
		OnConnectionState func(ConnectionState)
	}

	// PeerConnection is the native peer connection. Implementations must deliver
	// PeerHandlers callbacks asynchronously, never from inside one of these methods.
	PeerConnection interface {
		AddStream(Stream) error
		CreateOffer() (model.SessionDescription, error)
		CreateAnswer() (model.SessionDescription, error)
		SetLocalDescription(model.SessionDescription) error
		SetRemoteDescription(model.SessionDescription) error
		AddICECandidate(model.Candidate) error
		Close() error
	}

	PeerConnectionFactory interface {
		NewPeerConnection(PeerHandlers) (PeerConnection, error)
	}

	AudioOptions struct {
		Enabled bool
	}

	VideoOptions struct {
		Enabled bool
		Width   int
		Height  int
	}

	MediaSource interface {
		AcquireLocalStream(ctx context.Context, audio AudioOptions, video VideoOptions) (Stream, error)
	}

	Signaler interface {
		Send(model.Envelope) error
	}

	Config struct {
		Signaler    Signaler
		Factory     PeerConnectionFactory
		Media       MediaSource
		Logger      *zerolog.Logger
		EventBuffer int
	}
)

const (
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateFailed       ConnectionState = "failed"
	ConnectionStateClosed       ConnectionState = "closed"
)

// Orchestrator drives one PeerLink per remote room member: it decides who offers,
// relays SDP and ICE candidates through the signaler and tears links down on departure.
type Orchestrator struct {
	mx      sync.Mutex
	sig     Signaler
	factory PeerConnectionFactory
	media   MediaSource
	state   session.State
	links   map[string]*Link
	local   Stream
	events  chan Event
	logger  zerolog.Logger
}

func New(cfg Config) *Orchestrator {
	size := cfg.EventBuffer
	if size <= 0 {
		size = defaultEventBuffer
	}
	return &Orchestrator{
		sig:     cfg.Signaler,
		factory: cfg.Factory,
		media:   cfg.Media,
		links:   make(map[string]*Link),
		events:  make(chan Event, size),
		logger:  cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Session returns a copy of the current session state.
func (o *Orchestrator) Session() session.State {
	o.mx.Lock()
	defer o.mx.Unlock()

	st := o.state
	st.Members = append([]string(nil), o.state.Members...)
	return st
}

func (o *Orchestrator) Participants() []string {
	return o.Session().Members
}

func (o *Orchestrator) LocalStream() Stream {
	o.mx.Lock()
	defer o.mx.Unlock()
	return o.local
}

// LinkState returns the state of the link to peerID, false if there is none.
func (o *Orchestrator) LinkState(peerID string) (LinkState, bool) {
	o.mx.Lock()
	defer o.mx.Unlock()

	l, ok := o.links[peerID]
	if !ok {
		return LinkIdle, false
	}
	return l.state, true
}

func (o *Orchestrator) RemoteStream(peerID string) Stream {
	o.mx.Lock()
	defer o.mx.Unlock()

	if l, ok := o.links[peerID]; ok {
		return l.stream
	}
	return nil
}

func (o *Orchestrator) JoinRoom(roomID string) error {
	return o.sig.Send(model.Envelope{Type: model.TypeCreateOrJoin, Room: roomID})
}

// AcquireLocalStream obtains the local stream and announces it to the room.
func (o *Orchestrator) AcquireLocalStream(ctx context.Context, audio AudioOptions, video VideoOptions) (Stream, error) {
	stream, err := o.media.AcquireLocalStream(ctx, audio, video)
	if err != nil {
		err = errors.Join(ErrMediaAcquisition, err)
		o.logger.Error().Err(err).Msg("cannot get usermedia")
		o.emit(Event{Kind: EventError, Err: err})
		return nil, err
	}

	o.mx.Lock()
	defer o.mx.Unlock()

	o.logger.Debug().Str("stream", stream.ID()).Msg("local stream added")
	o.local = stream
	if !o.state.InRoom() {
		o.notify("local stream is ready, join a room to share it", ErrNotInRoom)
		return stream, nil
	}
	o.sendRoom(model.TypeGotStream)
	if o.state.IsInitiator {
		for _, peerID := range o.state.Members {
			if peerID != o.state.SelfID {
				o.connect(peerID)
			}
		}
	}
	return stream, nil
}

// LeaveRoom leaves the current room and closes every link.
func (o *Orchestrator) LeaveRoom() error {
	o.mx.Lock()
	defer o.mx.Unlock()

	if !o.state.InRoom() {
		o.notify("cannot leave, not in a room", ErrNotInRoom)
		return ErrNotInRoom
	}
	err := o.sig.Send(model.Envelope{Type: model.TypeLeaveRoom, Room: o.state.RoomID})
	o.removeAll()
	o.state.Reset()
	return err
}

// Hangup closes every link and tells the room, staying in it.
func (o *Orchestrator) Hangup() error {
	o.mx.Lock()
	defer o.mx.Unlock()

	if !o.state.InRoom() {
		o.notify("cannot hang up, not in a room", ErrNotInRoom)
		return ErrNotInRoom
	}
	o.sendRoom(model.TypeHangup)
	o.removeAll()
	return nil
}

// Kick closes the link to peerID and asks the relay to remove it from the room.
// The relay ignores the request unless this client is the room admin.
func (o *Orchestrator) Kick(peerID string) error {
	o.mx.Lock()
	defer o.mx.Unlock()

	if !o.state.InRoom() {
		o.notify("cannot kick, not in a room", ErrNotInRoom)
		return ErrNotInRoom
	}
	o.removeUser(peerID)
	return o.sig.Send(model.Envelope{Type: model.TypeKickout, Room: o.state.RoomID, DST: peerID})
}

// Run handles envelopes from in until ctx is done or in is closed.
func (o *Orchestrator) Run(ctx context.Context, in <-chan model.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-in:
			if !ok {
				return nil
			}
			o.Handle(env)
		}
	}
}

// Close tears down every link. The session state is left as is.
func (o *Orchestrator) Close() {
	o.mx.Lock()
	defer o.mx.Unlock()
	o.removeAll()
}

// Handle processes one envelope from the relay.
func (o *Orchestrator) Handle(env model.Envelope) {
	o.mx.Lock()
	defer o.mx.Unlock()

	o.logger.Debug().Str("type", env.Type).Str("src", env.SRC).Msg("received")

	switch env.Type {
	case model.TypeCreated:
		o.state.Created(env.Room, env.ID)
		o.emit(Event{Kind: EventRoomCreated, Room: env.Room})
		if o.local != nil {
			o.sendRoom(model.TypeGotStream)
		}
	case model.TypeJoined:
		o.state.Joined(env.Room, env.ID)
		o.emit(Event{Kind: EventJoinedRoom, Room: env.Room})
		if o.local != nil {
			o.sendRoom(model.TypeGotStream)
		}
	case model.TypeJoin:
		o.state.PeerJoining()
		o.emit(Event{Kind: EventNewJoin, Room: env.Room, PeerID: env.ID})
	case model.TypeReady:
		o.state.Ready(env.ID, env.Members)
		if env.ID != o.state.SelfID && o.state.IsInitiator && o.local != nil {
			o.connect(env.ID)
		}
	case model.TypeKickout:
		o.onKickout(env)
	case model.TypeLeftRoom:
		o.emit(Event{Kind: EventLeftRoom, Room: env.Room})
	default:
		if model.IsSignal(env.Type) {
			o.onSignal(env)
			return
		}
		o.logger.Debug().Str("type", env.Type).Msg("unknown envelope type")
	}
}

func (o *Orchestrator) onKickout(env model.Envelope) {
	if env.ID != o.state.SelfID || (env.Room != "" && env.Room != o.state.RoomID) {
		o.removeUser(env.ID)
		return
	}
	o.logger.Info().Str("roomID", o.state.RoomID).Msg("kicked out")
	room := o.state.RoomID
	o.removeAll()
	o.state.Reset()
	o.emit(Event{Kind: EventKicked, Room: room})
}

func (o *Orchestrator) onSignal(env model.Envelope) {
	peerID := env.SRC
	switch env.Type {
	case model.TypeLeave:
		o.logger.Debug().Str("peer", peerID).Msg("left the call")
		o.removeUser(peerID)
		o.state.PeerLeft(peerID)
		o.emit(Event{Kind: EventUserLeave, Room: env.Room, PeerID: peerID})
		return
	case model.TypeHangup:
		o.removeUser(peerID)
		o.emit(Event{Kind: EventUserHangup, PeerID: peerID})
		return
	}

	if l, ok := o.links[peerID]; ok && l.state == LinkConnected {
		o.logger.Debug().Str("peer", peerID).Str("type", env.Type).Msg("connection is already established")
		return
	}

	switch env.Type {
	case model.TypeGotStream:
		o.onGotStream(peerID)
	case model.TypeOffer:
		o.onOffer(peerID, env.Payload)
	case model.TypeAnswer:
		o.onAnswer(peerID, env.Payload)
	case model.TypeCandidate:
		o.onCandidate(peerID, env.Payload)
	}
}

func (o *Orchestrator) onGotStream(peerID string) {
	l, ok := o.links[peerID]
	if !ok {
		o.connect(peerID)
		return
	}
	if l.state == LinkOfferSent && l.offer != nil && !l.answered {
		o.logger.Debug().Str("peer", peerID).Msg("resending offer")
		o.sendTo(peerID, model.TypeOffer, *l.offer)
	}
}

func (o *Orchestrator) onOffer(peerID string, payload json.RawMessage) {
	var desc model.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		o.fail(peerID, errors.Join(ErrSessionDescription, err))
		return
	}
	l := o.ensureLink(peerID)
	if l == nil {
		o.logger.Warn().Str("peer", peerID).Msg("offer dropped, cannot connect yet")
		return
	}
	if !l.can(LinkAnswerSent) {
		o.logger.Debug().Str("peer", peerID).Stringer("state", l.state).Msg("offer ignored")
		return
	}
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		o.fail(peerID, errors.Join(ErrSessionDescription, err))
		return
	}
	answer, err := l.pc.CreateAnswer()
	if err != nil {
		o.fail(peerID, errors.Join(ErrSessionDescription, err))
		return
	}
	if err = l.pc.SetLocalDescription(answer); err != nil {
		o.fail(peerID, errors.Join(ErrSessionDescription, err))
		return
	}
	if !o.advance(l, LinkAnswerSent) {
		return
	}
	l.offer = nil
	o.logger.Debug().Str("peer", peerID).Msg("sending answer")
	o.sendTo(peerID, model.TypeAnswer, answer)
}

func (o *Orchestrator) onAnswer(peerID string, payload json.RawMessage) {
	l, ok := o.links[peerID]
	if !ok || l.state != LinkOfferSent || l.answered {
		o.logger.Debug().Str("peer", peerID).Msg("answer ignored")
		return
	}
	var desc model.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		o.fail(peerID, errors.Join(ErrSessionDescription, err))
		return
	}
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		o.fail(peerID, errors.Join(ErrSessionDescription, err))
		return
	}
	l.answered = true
	l.offer = nil
}

func (o *Orchestrator) onCandidate(peerID string, payload json.RawMessage) {
	o.state.InCall = true

	l, ok := o.links[peerID]
	if !ok {
		o.logger.Debug().Str("peer", peerID).Msg("candidate dropped, no link")
		return
	}
	var c model.Candidate
	if err := json.Unmarshal(payload, &c); err != nil {
		o.fail(peerID, errors.Join(ErrICECandidate, err))
		return
	}
	if err := l.pc.AddICECandidate(c); err != nil {
		o.fail(peerID, errors.Join(ErrICECandidate, err))
	}
}

// connect creates the link to peerID when allowed and offers if this client is initiator.
func (o *Orchestrator) connect(peerID string) *Link {
	if l, ok := o.links[peerID]; ok {
		return l
	}
	l := o.ensureLink(peerID)
	if l != nil && o.state.IsInitiator {
		o.makeOffer(l)
	}
	return l
}

func (o *Orchestrator) ensureLink(peerID string) *Link {
	if l, ok := o.links[peerID]; ok {
		return l
	}
	if !o.state.CanConnect(o.local != nil) {
		o.logger.Warn().
			Str("peer", peerID).
			Bool("ready", o.state.IsReady).
			Bool("localStream", o.local != nil).
			Msg("not connecting")
		return nil
	}

	l := newLink(peerID)
	pc, err := o.factory.NewPeerConnection(o.handlers(l))
	if err != nil {
		o.fail(peerID, errors.Join(ErrPeerConnectionCreation, err))
		return nil
	}
	if err = pc.AddStream(o.local); err != nil {
		_ = pc.Close()
		o.fail(peerID, errors.Join(ErrPeerConnectionCreation, err))
		return nil
	}
	l.pc = pc
	if !o.advance(l, LinkConnecting) {
		_ = l.close()
		return nil
	}
	o.links[peerID] = l
	o.logger.Debug().Str("peer", peerID).Msg("created peer connection")
	return l
}

func (o *Orchestrator) makeOffer(l *Link) {
	if !l.can(LinkOfferSent) {
		return
	}
	offer, err := l.pc.CreateOffer()
	if err != nil {
		o.fail(l.PeerID, errors.Join(ErrSessionDescription, err))
		return
	}
	if err = l.pc.SetLocalDescription(offer); err != nil {
		o.fail(l.PeerID, errors.Join(ErrSessionDescription, err))
		return
	}
	if !o.advance(l, LinkOfferSent) {
		return
	}
	l.offer = &offer
	o.logger.Debug().Str("peer", l.PeerID).Msg("sending offer")
	o.sendTo(l.PeerID, model.TypeOffer, offer)
}

func (o *Orchestrator) handlers(l *Link) PeerHandlers {
	return PeerHandlers{
		OnICECandidate: func(c model.Candidate) {
			o.mx.Lock()
			defer o.mx.Unlock()
			if o.links[l.PeerID] != l {
				return
			}
			o.sendTo(l.PeerID, model.TypeCandidate, c)
		},
		OnTrack: func(s Stream) {
			o.mx.Lock()
			defer o.mx.Unlock()
			if o.links[l.PeerID] != l {
				return
			}
			o.logger.Debug().Str("peer", l.PeerID).Str("stream", s.ID()).Msg("remote stream added")
			l.stream = s
			o.emit(Event{Kind: EventNewUser, PeerID: l.PeerID, Stream: s})
		},
		OnConnectionState: func(cs ConnectionState) {
			o.mx.Lock()
			defer o.mx.Unlock()
			if o.links[l.PeerID] != l {
				return
			}
			o.logger.Debug().Str("peer", l.PeerID).Str("state", string(cs)).Msg("connection state changed")
			if cs == ConnectionStateConnected {
				o.advance(l, LinkConnected)
			}
		},
	}
}

// advance moves l to the next state and reports whether the state machine allowed it.
func (o *Orchestrator) advance(l *Link, to LinkState) bool {
	if err := l.transition(to); err != nil {
		o.logger.Warn().Err(err).Str("peer", l.PeerID).Msg("link state not changed")
		return false
	}
	return true
}

func (o *Orchestrator) removeUser(peerID string) {
	l, ok := o.links[peerID]
	if !ok {
		return
	}
	if err := l.close(); err != nil {
		o.logger.Warn().Err(err).Str("peer", peerID).Msg("closing peer connection")
	}
	delete(o.links, peerID)
	o.emit(Event{Kind: EventRemoveUser, PeerID: peerID})
}

func (o *Orchestrator) removeAll() {
	for peerID, l := range o.links {
		if err := l.close(); err != nil {
			o.logger.Warn().Err(err).Str("peer", peerID).Msg("closing peer connection")
		}
		delete(o.links, peerID)
	}
	o.emit(Event{Kind: EventRemoveUser})
}

func (o *Orchestrator) sendTo(peerID, typ string, payload any) {
	env, err := model.NewSignal(typ, payload)
	if err != nil {
		o.logger.Error().Err(err).Str("type", typ).Msg("cannot encode payload")
		return
	}
	env.DST = peerID
	if err = o.sig.Send(env); err != nil {
		o.logger.Error().Err(err).Str("type", typ).Str("peer", peerID).Msg("send failed")
	}
}

func (o *Orchestrator) sendRoom(typ string) {
	env := model.Envelope{Type: typ, Room: o.state.RoomID}
	if err := o.sig.Send(env); err != nil {
		o.logger.Error().Err(err).Str("type", typ).Msg("send failed")
	}
}

func (o *Orchestrator) fail(peerID string, err error) {
	o.logger.Error().Err(err).Str("peer", peerID).Msg("peer error")
	o.emit(Event{Kind: EventError, PeerID: peerID, Err: err})
}

func (o *Orchestrator) notify(msg string, err error) {
	o.logger.Warn().Err(err).Msg(msg)
	o.emit(Event{Kind: EventNotification, Message: msg, Err: err})
}

func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn().Str("kind", string(ev.Kind)).Msg("event buffer is full, dropping event")
	}
}
