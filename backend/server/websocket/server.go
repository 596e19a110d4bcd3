package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultSignalingSessionCloseTimeout = 2 * time.Second

	defaultWebsocketReadBufferSize     = 16 * 1024
	defaultWebsocketWriteBufferSize    = 16 * 1024
	defaultWebSocketMaxMessageSize     = 64 * 1024
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
	ErrMarshal    = errors.New("cannot encode envelope")
)

type (
	SignalingService interface {
		CreateSignalingSession(context.Context, string, model.Wire) error
		DeleteSignalingSession(context.Context, string) error
	}

	Config struct {
		Logger           *zerolog.Logger
		SignalingService SignalingService
		ListenAddr       string
	}

	Server struct {
		svc SignalingService
		ws  *websocket.Upgrader
		*http.Server

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:    cfg.SignalingService,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/signal", srv.signal)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

// Handler exposes the signaling endpoint without starting a listener.
func (srv *Server) Handler() http.Handler {
	return srv.Server.Handler
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

func (srv *Server) signal(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	wire := model.NewWire()

	ctx, cancel := context.WithCancel(context.TODO()) // long-living wire context

	err = srv.svc.CreateSignalingSession(ctx, connID, wire)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to create signaling session")
		cancel()
		webSocketCloser(conn, &srv.logger)
		return
	}
	srv.logger.Debug().
		Str("connID", connID).
		Msg("signaling session created")

	go srv.handleWSConn(ctx, cancel, conn, connID, wire)
}

func (srv *Server) destroySession(connID string, logger *zerolog.Logger) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(defaultSignalingSessionCloseTimeout))
	defer cancel()
	err := srv.svc.DeleteSignalingSession(ctx, connID)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to delete signaling session")
		return
	}
	logger.Debug().Msg("signaling session ended")
}

func (srv *Server) handleWSConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	connID string,
	wire model.Wire,
) {
	wg := &sync.WaitGroup{}

	logger := srv.logger.With().
		Str("connID", connID).
		Logger()

	wg.Add(2)
	go func() {
		webSocketReceiver(ctx, wg, conn, connID, wire.RX, &logger)
		cancel()
	}()
	go func() {
		webSocketSender(ctx, wg, conn, wire.TX, &logger)
		cancel()
	}()

	wg.Wait()
	webSocketCloser(conn, &logger)
	srv.destroySession(connID, &logger)
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan model.Envelope,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			err = writePing(conn)
			logger.Trace().Msg("ping sent")
		case env, ok := <-tx:
			if !ok {
				return
			}
			err = writeEnvelope(conn, env)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to write to websocket")
			return
		}
	}
}

func writePing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, []byte{})
}

func writeEnvelope(conn *websocket.Conn, env model.Envelope) error {
	b, err := json.Marshal(&env)
	if err != nil {
		return errors.Join(ErrMarshal, err)
	}
	if err = conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

// webSocketReceiver decodes inbound frames, stamps them with connID and pushes them to rx.
// Frames that are not valid envelopes are logged and skipped.
func webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	connID string,
	rx chan<- model.Envelope,
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	extendDeadline := func() error {
		return conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return extendDeadline()
	})
	if err := extendDeadline(); err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

	for ctx.Err() == nil {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("connection closed")
			} else {
				logger.Error().Err(err).Msg("unexpected error during receive")
			}
			return
		}

		var env model.Envelope
		if err = json.Unmarshal(frame, &env); err != nil {
			logger.Warn().Err(err).Msg("malformed envelope dropped")
			continue
		}
		env.SRC = connID
		select {
		case rx <- env:
		case <-ctx.Done():
			return
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage, []byte{})
		if wsErr != nil {
			logger.Error().Err(wsErr).Msg("failed to close websocket connection")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
