package service

import (
	"context"
	"errors"
	"sync"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/backend/storage/memory"
	"github.com/rs/zerolog"
)

var (
	ErrGet     = errors.New("unable to get room")
	ErrConnect = errors.New("unable to connect")
	ErrKick    = errors.New("unable to kick")
	ErrServe   = errors.New("session is still being served")
)

type (
	RoomStore interface {
		CreateOrJoinRoom(roomID string, connID string) memory.JoinResult
		LeaveRoom(roomID string, connID string) ([]string, bool)
		LeaveAll(connID string) map[string][]string
		Kick(roomID, targetID, callerID string) (bool, error)
		GetRoom(roomID string) (model.Room, error)
		Members(roomID string) []string
	}

	Switch interface {
		Connect(connID string, wire model.Wire) error
		Disconnect(connID string) bool
		Send(ctx context.Context, dst string, env model.Envelope) bool
		Multicast(ctx context.Context, dsts []string, skip string, env model.Envelope) int
		Broadcast(ctx context.Context, skip string, env model.Envelope) int
	}

	// Service is the signaling relay. It keeps room membership, elects room admins
	// and routes envelopes between connections without looking at their payload.
	Service struct {
		store  RoomStore
		sw     Switch
		logger zerolog.Logger

		mx       sync.Mutex
		sessions map[string]*session
	}

	// session tracks the serve goroutine of one connection.
	session struct {
		cancel context.CancelFunc
		done   chan struct{}
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:    cfg.RoomStore,
		sw:       cfg.Switch,
		logger:   cfg.Logger.With().Str("component", "relay").Logger(),
		sessions: make(map[string]*session),
	}
}

// CreateSignalingSession registers connID and starts relaying envelopes it sends on wire.RX
// until ctx is done or the session is deleted.
func (svc *Service) CreateSignalingSession(ctx context.Context, connID string, wire model.Wire) error {
	if err := svc.sw.Connect(connID, wire); err != nil {
		return errors.Join(ErrConnect, err)
	}
	svc.logger.Debug().Str("connID", connID).Msg("signaling session connected")

	sCtx, cancel := context.WithCancel(ctx)
	sess := &session{cancel: cancel, done: make(chan struct{})}
	svc.mx.Lock()
	svc.sessions[connID] = sess
	svc.mx.Unlock()

	go func() {
		defer close(sess.done)
		svc.serve(sCtx, connID, wire.RX)
	}()
	return nil
}

// DeleteSignalingSession drops connID. It is the transport's disconnect notification.
// Membership is cleaned up only after the envelope being handled for connID, if any,
// has been applied, so a late create or join cannot outlive the connection.
func (svc *Service) DeleteSignalingSession(ctx context.Context, connID string) error {
	var err error
	svc.mx.Lock()
	sess, ok := svc.sessions[connID]
	svc.mx.Unlock()
	if ok {
		sess.cancel()
		select {
		case <-sess.done:
		case <-ctx.Done():
			err = errors.Join(ErrServe, ctx.Err())
			svc.logger.Warn().Err(err).Str("connID", connID).Msg("disconnecting before serve loop exited")
		}
	}
	if svc.Disconnect(ctx, connID) {
		svc.mx.Lock()
		if svc.sessions[connID] == sess {
			delete(svc.sessions, connID)
		}
		svc.mx.Unlock()
	}
	return err
}

func (svc *Service) GetRoom(roomID string) (model.Room, error) {
	room, err := svc.store.GetRoom(roomID)
	if err != nil {
		return model.Room{}, errors.Join(ErrGet, err)
	}
	return room, nil
}

func (svc *Service) serve(ctx context.Context, connID string, rx <-chan model.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-rx:
			if !ok {
				return
			}
			env.SRC = connID
			svc.Handle(ctx, env)
		}
	}
}

// Handle dispatches one inbound envelope. env.SRC must already hold the sender's connection id.
func (svc *Service) Handle(ctx context.Context, env model.Envelope) {
	if env.SRC == "" {
		svc.logger.Error().Str("type", env.Type).Msg("envelope with empty src")
		return
	}
	switch env.Type {
	case model.TypeCreateOrJoin:
		svc.CreateOrJoin(ctx, env.Room, env.SRC)
	case model.TypeKickout:
		svc.Kick(ctx, env.DST, env.Room, env.SRC)
	case model.TypeLeaveRoom:
		svc.Leave(ctx, env.SRC, env.Room)
	default:
		if !model.IsSignal(env.Type) {
			svc.logger.Warn().
				Str("src", env.SRC).
				Str("type", env.Type).
				Msg("unknown envelope type")
			return
		}
		svc.Route(ctx, env, env.SRC)
	}
}

// CreateOrJoin puts connID into roomID, creating the room with connID as admin
// when it is absent or empty.
func (svc *Service) CreateOrJoin(ctx context.Context, roomID, connID string) {
	res := svc.store.CreateOrJoinRoom(roomID, connID)
	logger := svc.logger.With().Str("roomID", roomID).Str("connID", connID).Logger()

	if res.Created {
		logger.Debug().Msg("room created")
		svc.sw.Send(ctx, connID, model.Envelope{
			Type: model.TypeCreated,
			Room: roomID,
			ID:   connID,
		})
		return
	}

	logger.Debug().Int("members", len(res.Room.Participants)).Msg("joined room")
	svc.sw.Multicast(ctx, res.Existing, connID, model.Envelope{
		Type: model.TypeJoin,
		Room: roomID,
		ID:   connID,
	})
	svc.sw.Send(ctx, connID, model.Envelope{
		Type: model.TypeJoined,
		Room: roomID,
		ID:   connID,
	})
	members := res.Room.MemberIDs()
	svc.sw.Multicast(ctx, members, "", model.Envelope{
		Type:    model.TypeReady,
		Room:    roomID,
		ID:      connID,
		Members: members,
	})
}

// Route delivers env from senderID: to env.DST only when set, otherwise to the other
// members of env.Room, otherwise to every other connection.
func (svc *Service) Route(ctx context.Context, env model.Envelope, senderID string) {
	env.SRC = senderID
	logger := svc.logger.With().
		Str("type", env.Type).
		Str("src", senderID).
		Logger()

	switch {
	case env.DST != "":
		if !svc.sw.Send(ctx, env.DST, env) {
			logger.Debug().Str("dst", env.DST).Msg("envelope was dropped, nowhere to forward")
		}
	case env.Room != "":
		n := svc.sw.Multicast(ctx, svc.store.Members(env.Room), senderID, env)
		logger.Debug().Str("roomID", env.Room).Int("delivered", n).Msg("envelope routed to room")
	default:
		n := svc.sw.Broadcast(ctx, senderID, env)
		logger.Debug().Int("delivered", n).Msg("envelope routed to everyone")
	}
}

// Kick removes targetID from roomID on behalf of callerID. Only the room admin may kick;
// other callers are logged and otherwise ignored. An authorized kickout is broadcast even
// when targetID was no longer a member, so clients still drop their links to it.
func (svc *Service) Kick(ctx context.Context, targetID, roomID, callerID string) {
	logger := svc.logger.With().
		Str("roomID", roomID).
		Str("caller", callerID).
		Str("target", targetID).
		Logger()

	removed, err := svc.store.Kick(roomID, targetID, callerID)
	if err != nil {
		logger.Warn().Err(errors.Join(ErrKick, err)).Msg("kick rejected")
		return
	}
	svc.sw.Broadcast(ctx, callerID, model.Envelope{
		Type: model.TypeKickout,
		Room: roomID,
		SRC:  callerID,
		ID:   targetID,
	})
	logger.Debug().Bool("wasMember", removed).Msg("member kicked")
}

// Leave removes connID from roomID, acks the caller and tells remaining members.
func (svc *Service) Leave(ctx context.Context, connID, roomID string) {
	remaining, ok := svc.store.LeaveRoom(roomID, connID)
	svc.sw.Send(ctx, connID, model.Envelope{
		Type: model.TypeLeftRoom,
		Room: roomID,
	})
	if !ok {
		svc.logger.Debug().
			Str("roomID", roomID).
			Str("connID", connID).
			Msg("leave from non member")
		return
	}
	svc.announceLeave(ctx, connID, roomID, remaining)
}

// Disconnect drops connID from every room it was in. It reports false when connID
// was already disconnected, in which case nothing is broadcast.
func (svc *Service) Disconnect(ctx context.Context, connID string) bool {
	if !svc.sw.Disconnect(connID) {
		return false
	}
	for roomID, remaining := range svc.store.LeaveAll(connID) {
		svc.announceLeave(ctx, connID, roomID, remaining)
	}
	svc.logger.Debug().Str("connID", connID).Msg("signaling session deleted")
	return true
}

func (svc *Service) announceLeave(ctx context.Context, connID, roomID string, remaining []string) {
	n := svc.sw.Multicast(ctx, remaining, connID, model.Envelope{
		Type: model.TypeLeave,
		Room: roomID,
		SRC:  connID,
	})
	svc.logger.Debug().
		Str("roomID", roomID).
		Str("connID", connID).
		Int("notified", n).
		Msg("member left room")
}
