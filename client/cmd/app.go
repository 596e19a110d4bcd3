package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/client/orchestrator"
	"github.com/adwski/webrtc-rooms/client/rtc"
	"github.com/adwski/webrtc-rooms/client/signaling"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultLeaveWait      = time.Second
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("peer", pflag.ContinueOnError)

	var (
		signalURL = fs.StringP("signal-url", "s", "ws://localhost:8888/signal", "relay websocket url")
		room      = fs.StringP("room", "r", "", "room to create or join")
		audio     = fs.Bool("audio", true, "send audio")
		video     = fs.Bool("video", true, "send video")
		stunURLs  = fs.StringSlice("stun-urls", []string{"stun:stun.l.google.com:19302"}, "STUN server urls")
		logLevel  = fs.StringP("log-level", "l", "debug", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	if *room == "" {
		logger.Fatal().Msg("room name is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := signaling.NewClient(signaling.Config{
		Logger: &logger,
		URL:    *signalURL,
	})
	dialCtx, dialCancel := context.WithTimeout(ctx, defaultConnectTimeout)
	err = client.Connect(dialCtx)
	dialCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect")
	}
	defer client.Close()

	o := orchestrator.New(orchestrator.Config{
		Signaler: client,
		Factory: rtc.NewFactory(rtc.Config{
			Logger:     &logger,
			ICEServers: []model.ICEServer{{URLs: *stunURLs}},
		}),
		Media:  rtc.NewStaticMediaSource(&logger),
		Logger: &logger,
	})
	defer o.Close()

	if _, err = o.AcquireLocalStream(ctx,
		orchestrator.AudioOptions{Enabled: *audio},
		orchestrator.VideoOptions{Enabled: *video, Width: 1280, Height: 720}); err != nil {
		logger.Fatal().Err(err).Msg("failed to acquire local stream")
	}
	if err = o.JoinRoom(*room); err != nil {
		logger.Fatal().Err(err).Msg("failed to join room")
	}

	go func() {
		if err := o.Run(ctx, client.Incoming()); err != nil {
			logger.Debug().Err(err).Msg("orchestrator stopped")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Warn().Msg("interrupted")
			if err = o.LeaveRoom(); err != nil {
				logger.Error().Err(err).Msg("failed to leave room")
			}
			time.Sleep(defaultLeaveWait)
			return
		case <-client.Done():
			logger.Error().Msg("signaling connection lost")
			return
		case ev := <-o.Events():
			logEvent(&logger, ev)
			if ev.Kind == orchestrator.EventKicked {
				return
			}
		}
	}
}

func logEvent(logger *zerolog.Logger, ev orchestrator.Event) {
	e := logger.Info()
	if ev.Kind == orchestrator.EventError {
		e = logger.Error().Err(ev.Err)
	} else if ev.Err != nil {
		e = logger.Warn().Err(ev.Err)
	}
	if ev.Stream != nil {
		e = e.Str("stream", ev.Stream.ID())
	}
	e.Str("event", string(ev.Kind)).
		Str("room", ev.Room).
		Str("peer", ev.PeerID).
		Str("message", ev.Message).
		Msg("room event")
}
