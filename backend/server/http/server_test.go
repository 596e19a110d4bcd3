package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/backend/service"
	"github.com/adwski/webrtc-rooms/backend/storage/memory"
	sw "github.com/adwski/webrtc-rooms/backend/switch"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) (*Server, *service.Service) {
	t.Helper()
	logger := zerolog.Nop()
	svc := service.NewService(service.Config{
		RoomStore: memory.NewMemStore(),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})
	srv := NewServer(Config{
		Logger:      &logger,
		RoomService: svc,
		ICEServers:  []model.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}},
	})
	return srv, svc
}

func TestServer_GetRoom(t *testing.T) {
	srv, svc := newTestAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.CreateSignalingSession(ctx, "a", model.NewBufferedWire(8)))
	require.NoError(t, svc.CreateSignalingSession(ctx, "b", model.NewBufferedWire(8)))
	svc.CreateOrJoin(ctx, "r1", "a")
	svc.CreateOrJoin(ctx, "r1", "b")

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/room/r1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"message":"OK","data":{"room_id":"r1","admin":"a","members":["a","b"]}}`,
		rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/room/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetICEServers(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ice", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"message":"OK","data":{"iceServers":[{"urls":["stun:stun.example.org:3478"]}]}}`,
		rec.Body.String())
}
