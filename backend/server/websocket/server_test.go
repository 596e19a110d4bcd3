package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/backend/service"
	"github.com/adwski/webrtc-rooms/backend/storage/memory"
	sw "github.com/adwski/webrtc-rooms/backend/switch"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	logger := zerolog.Nop()
	svc := service.NewService(service.Config{
		RoomStore: memory.NewMemStore(),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})
	srv := NewServer(Config{
		Logger:           &logger,
		SignalingService: svc,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/signal"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env model.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestServer_RoomFlowAndDisconnect(t *testing.T) {
	url := newTestServer(t)
	a := dial(t, url)
	b := dial(t, url)

	require.NoError(t, a.WriteJSON(model.Envelope{Type: model.TypeCreateOrJoin, Room: "r1"}))
	created := readEnvelope(t, a)
	require.Equal(t, model.TypeCreated, created.Type)
	idA := created.ID
	require.NotEmpty(t, idA)

	require.NoError(t, b.WriteJSON(model.Envelope{Type: model.TypeCreateOrJoin, Room: "r1"}))
	joined := readEnvelope(t, b)
	require.Equal(t, model.TypeJoined, joined.Type)
	idB := joined.ID
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, model.TypeReady, readEnvelope(t, b).Type)

	assert.Equal(t, model.TypeJoin, readEnvelope(t, a).Type)
	ready := readEnvelope(t, a)
	assert.Equal(t, model.TypeReady, ready.Type)
	assert.Equal(t, idB, ready.ID)

	offer, err := model.NewSignal(model.TypeOffer, model.SessionDescription{Type: "offer", SDP: "v=0"})
	require.NoError(t, err)
	offer.DST = idB
	offer.SRC = "forged"
	require.NoError(t, a.WriteJSON(offer))
	got := readEnvelope(t, b)
	assert.Equal(t, model.TypeOffer, got.Type)
	assert.Equal(t, idA, got.SRC)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(got.Payload))

	require.NoError(t, a.Close())
	leave := readEnvelope(t, b)
	assert.Equal(t, model.TypeLeave, leave.Type)
	assert.Equal(t, idA, leave.SRC)
	assert.Equal(t, "r1", leave.Room)
}
