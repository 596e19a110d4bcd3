package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	wsserver "github.com/adwski/webrtc-rooms/backend/server/websocket"
	"github.com/adwski/webrtc-rooms/backend/service"
	"github.com/adwski/webrtc-rooms/backend/storage/memory"
	sw "github.com/adwski/webrtc-rooms/backend/switch"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelayURL(t *testing.T) string {
	t.Helper()
	logger := zerolog.Nop()
	svc := service.NewService(service.Config{
		RoomStore: memory.NewMemStore(),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})
	srv := wsserver.NewServer(wsserver.Config{
		Logger:           &logger,
		SignalingService: svc,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/signal"
}

func newConnectedClient(t *testing.T, url string) *Client {
	t.Helper()
	logger := zerolog.Nop()
	c := NewClient(Config{Logger: &logger, URL: url})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Close)
	return c
}

func next(t *testing.T, c *Client) model.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.Incoming():
		require.True(t, ok, "incoming channel closed")
		return env
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no envelope received")
	}
	return model.Envelope{}
}

func TestClient_ExchangesEnvelopes(t *testing.T) {
	url := newRelayURL(t)
	a := newConnectedClient(t, url)
	b := newConnectedClient(t, url)

	require.NoError(t, a.Send(model.Envelope{Type: model.TypeCreateOrJoin, Room: "r1"}))
	created := next(t, a)
	require.Equal(t, model.TypeCreated, created.Type)

	require.NoError(t, b.Send(model.Envelope{Type: model.TypeCreateOrJoin, Room: "r1"}))
	joined := next(t, b)
	require.Equal(t, model.TypeJoined, joined.Type)
	assert.Equal(t, model.TypeReady, next(t, b).Type)
	assert.Equal(t, model.TypeJoin, next(t, a).Type)
	assert.Equal(t, model.TypeReady, next(t, a).Type)

	cand, err := model.NewSignal(model.TypeCandidate, model.Candidate{Candidate: "candidate:1"})
	require.NoError(t, err)
	cand.DST = joined.ID
	require.NoError(t, a.Send(cand))

	got := next(t, b)
	assert.Equal(t, model.TypeCandidate, got.Type)
	assert.Equal(t, created.ID, got.SRC)
	assert.JSONEq(t, `{"candidate":"candidate:1"}`, string(got.Payload))
}

func TestClient_CloseStopsPumps(t *testing.T) {
	url := newRelayURL(t)
	a := newConnectedClient(t, url)
	b := newConnectedClient(t, url)

	require.NoError(t, a.Send(model.Envelope{Type: model.TypeCreateOrJoin, Room: "r1"}))
	require.Equal(t, model.TypeCreated, next(t, a).Type)
	require.NoError(t, b.Send(model.Envelope{Type: model.TypeCreateOrJoin, Room: "r1"}))
	require.Equal(t, model.TypeJoined, next(t, b).Type)
	require.Equal(t, model.TypeReady, next(t, b).Type)

	b.Close()
	b.Close()
	assert.ErrorIs(t, b.Send(model.Envelope{Type: model.TypeHangup}), ErrClosed)
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-b.Incoming():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, model.TypeJoin, next(t, a).Type)
	assert.Equal(t, model.TypeReady, next(t, a).Type)
	leave := next(t, a)
	assert.Equal(t, model.TypeLeave, leave.Type)
	assert.Equal(t, "r1", leave.Room)
}

func TestClient_ConnectFailure(t *testing.T) {
	logger := zerolog.Nop()
	c := NewClient(Config{Logger: &logger, URL: "ws://127.0.0.1:1/signal"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx), ErrConnect)
}

func TestClient_SkipsMalformedFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = conn.WriteJSON(model.Envelope{Type: model.TypeCreated, Room: "r1", ID: "a"})
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(ts.Close)

	c := newConnectedClient(t, "ws"+strings.TrimPrefix(ts.URL, "http"))
	env := next(t, c)
	assert.Equal(t, model.Envelope{Type: model.TypeCreated, Room: "r1", ID: "a"}, env)
}
