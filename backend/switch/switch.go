package _switch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimout = time.Second
)

var (
	ErrAlreadyConnected = errors.New("endpoint is already connected")
)

// Switch delivers envelopes to connected endpoints by connection id.
type Switch struct {
	logger  zerolog.Logger
	mx      *sync.RWMutex
	fwd     map[string]model.Wire
	timeout time.Duration
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger:  logger.With().Str("component", "switch").Logger(),
		mx:      &sync.RWMutex{},
		fwd:     make(map[string]model.Wire),
		timeout: defaultFwdTimout,
	}
}

func (sw *Switch) Connect(endpoint string, wire model.Wire) error {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	if _, ok := sw.fwd[endpoint]; ok {
		return ErrAlreadyConnected
	}
	sw.fwd[endpoint] = wire
	sw.logger.Debug().Str("endpoint", endpoint).Msg("endpoint connected")
	return nil
}

// Disconnect removes endpoint and reports whether it was connected.
// Only one caller can ever observe true for a given endpoint.
func (sw *Switch) Disconnect(endpoint string) bool {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	if _, ok := sw.fwd[endpoint]; !ok {
		return false
	}
	delete(sw.fwd, endpoint)
	sw.logger.Debug().Str("endpoint", endpoint).Msg("endpoint disconnected")
	return true
}

// Send delivers env to a single endpoint.
func (sw *Switch) Send(ctx context.Context, dst string, env model.Envelope) bool {
	sw.mx.RLock()
	wire, ok := sw.fwd[dst]
	sw.mx.RUnlock()

	if !ok {
		sw.logger.Debug().
			Str("type", env.Type).
			Str("src", env.SRC).
			Str("dst", dst).
			Msg("cannot forward, dst not found")
		return false
	}
	sent, _ := sw.send(ctx, dst, env, wire.TX)
	return sent
}

// Multicast delivers env to every endpoint in dsts except skip and returns the
// number of successful deliveries.
func (sw *Switch) Multicast(ctx context.Context, dsts []string, skip string, env model.Envelope) int {
	var sent int
	for _, dst := range dsts {
		if dst == skip {
			continue
		}
		sw.mx.RLock()
		wire, ok := sw.fwd[dst]
		sw.mx.RUnlock()
		if !ok {
			continue
		}
		ok, canceled := sw.send(ctx, dst, env, wire.TX)
		if canceled {
			break
		}
		if ok {
			sent++
		}
	}
	return sent
}

// Broadcast delivers env to every connected endpoint except skip.
func (sw *Switch) Broadcast(ctx context.Context, skip string, env model.Envelope) int {
	sw.mx.RLock()
	dsts := make([]string, 0, len(sw.fwd))
	for dst := range sw.fwd {
		dsts = append(dsts, dst)
	}
	sw.mx.RUnlock()

	sent := sw.Multicast(ctx, dsts, skip, env)
	if sent == 0 {
		sw.logger.Debug().
			Str("type", env.Type).
			Str("src", env.SRC).
			Msg("broadcast did not reach anyone")
	}
	return sent
}

func (sw *Switch) send(ctx context.Context, dst string, env model.Envelope, tx chan<- model.Envelope) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(sw.timeout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		sw.logger.Warn().Str("dst", dst).Str("type", env.Type).Msg("dead endpoint")
	case tx <- env:
		sw.logger.Debug().Str("dst", dst).Str("type", env.Type).Msg("envelope is forwarded")
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
