package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/webrtc-rooms/backend/model"
	httpServer "github.com/adwski/webrtc-rooms/backend/server/http"
	websocketServer "github.com/adwski/webrtc-rooms/backend/server/websocket"
	"github.com/adwski/webrtc-rooms/backend/service"
	store "github.com/adwski/webrtc-rooms/backend/storage/memory"
	sw "github.com/adwski/webrtc-rooms/backend/switch"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

// relayConfig is everything the relay binary takes from the command line.
type relayConfig struct {
	apiAddr  string
	wsAddr   string
	logLevel zerolog.Level

	stunURLs     []string
	turnURLs     []string
	turnUsername string
	turnPassword string
}

func parseConfig(args []string) (*relayConfig, error) {
	var (
		cfg   relayConfig
		level string
		fs    = pflag.NewFlagSet("relay", pflag.ContinueOnError)
	)
	fs.StringVarP(&cfg.apiAddr, "api-listen-addr", "a", ":8080", "room api listen address")
	fs.StringVarP(&cfg.wsAddr, "ws-listen-addr", "w", ":8888", "websocket signaling listen address")
	fs.StringVarP(&level, "log-level", "l", "debug", "log level")
	fs.StringSliceVar(&cfg.stunURLs, "stun-urls", []string{defaultSTUN}, "STUN urls advertised by /api/ice")
	fs.StringSliceVar(&cfg.turnURLs, "turn-urls", nil, "TURN urls advertised by /api/ice")
	fs.StringVar(&cfg.turnUsername, "turn-username", "", "TURN username")
	fs.StringVar(&cfg.turnPassword, "turn-password", "", "TURN password")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.logLevel = lvl
	return &cfg, nil
}

func (cfg *relayConfig) iceServers() []model.ICEServer {
	var servers []model.ICEServer
	if len(cfg.stunURLs) > 0 {
		servers = append(servers, model.ICEServer{URLs: cfg.stunURLs})
	}
	if len(cfg.turnURLs) > 0 {
		servers = append(servers, model.ICEServer{
			URLs:       cfg.turnURLs,
			Username:   cfg.turnUsername,
			Credential: cfg.turnPassword,
		})
	}
	return servers
}

type runner interface {
	Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error)
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid command line arguments")
	}
	logger = logger.Level(cfg.logLevel)

	relay := service.NewService(service.Config{
		RoomStore: store.NewMemStore(),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})
	servers := []runner{
		httpServer.NewServer(httpServer.Config{
			Logger:      &logger,
			RoomService: relay,
			ICEServers:  cfg.iceServers(),
			ListenAddr:  cfg.apiAddr,
		}),
		websocketServer.NewServer(websocketServer.Config{
			Logger:           &logger,
			SignalingService: relay,
			ListenAddr:       cfg.wsAddr,
		}),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wg := &sync.WaitGroup{}
	errc := make(chan error, len(servers))
	for _, srv := range servers {
		wg.Add(1)
		go srv.Run(ctx, wg, errc)
	}

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("server failed, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
