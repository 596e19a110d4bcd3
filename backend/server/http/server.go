package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type RoomService interface {
	GetRoom(roomID string) (model.Room, error)
}

type RoomInfo struct {
	ID      string   `json:"room_id"`
	Admin   string   `json:"admin"`
	Members []string `json:"members"`
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger     zerolog.Logger
	svc        RoomService
	iceServers []model.ICEServer
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	RoomService RoomService
	ICEServers  []model.ICEServer
	ListenAddr  string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:     cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:        cfg.RoomService,
		iceServers: cfg.ICEServers,
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /api/room/{roomID}", srv.getRoom)
	r.HandleFunc("GET /api/ice", srv.getICEServers)
	r.HandleFunc("OPTIONS /", corsHandler)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	roomID := r.PathValue("roomID")

	room, err := srv.svc.GetRoom(roomID)
	if err != nil {
		srv.logger.Debug().Err(err).Str("roomID", roomID).Msg("room lookup failed")
		srv.writeJSON(w, http.StatusNotFound, &GenericResponse{Error: err.Error()})
		return
	}
	srv.writeJSON(w, http.StatusOK, &GenericResponse{
		Message: "OK",
		Data: RoomInfo{
			ID:      room.ID,
			Admin:   room.Admin,
			Members: room.MemberIDs(),
		},
	})
}

func (srv *Server) getICEServers(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	srv.writeJSON(w, http.StatusOK, &GenericResponse{
		Message: "OK",
		Data:    map[string]any{"iceServers": srv.iceServers},
	})
}

func (srv *Server) writeJSON(w http.ResponseWriter, code int, resp *GenericResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	srv.writeBytes(w, code, b)
}

func (srv *Server) writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		srv.logger.Error().Err(err).Msg("failed to write response")
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
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
