package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/adwski/webrtc-rooms/client/orchestrator"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var (
	ErrNoMedia           = errors.New("neither audio nor video requested")
	ErrUnsupportedStream = errors.New("stream was not created by this package")
)

// LocalStream is a set of sample tracks sharing one stream id.
type LocalStream struct {
	id     string
	tracks []*webrtc.TrackLocalStaticSample
}

func (s *LocalStream) ID() string {
	return s.id
}

// Tracks returns the sample tracks so a capture pipeline can write media into them.
func (s *LocalStream) Tracks() []*webrtc.TrackLocalStaticSample {
	return s.tracks
}

// RemoteStream collects remote tracks that arrived with the same stream id.
type RemoteStream struct {
	mx     sync.Mutex
	id     string
	tracks []*webrtc.TrackRemote
}

func (s *RemoteStream) ID() string {
	return s.id
}

func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]*webrtc.TrackRemote(nil), s.tracks...)
}

func (s *RemoteStream) add(t *webrtc.TrackRemote) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.tracks = append(s.tracks, t)
}

// StaticMediaSource produces opus and vp8 sample tracks. Nothing is captured;
// callers feed samples through LocalStream.Tracks.
type StaticMediaSource struct {
	logger zerolog.Logger
}

func NewStaticMediaSource(logger *zerolog.Logger) *StaticMediaSource {
	return &StaticMediaSource{
		logger: logger.With().Str("component", "media").Logger(),
	}
}

func (m *StaticMediaSource) AcquireLocalStream(
	ctx context.Context,
	audio orchestrator.AudioOptions,
	video orchestrator.VideoOptions,
) (orchestrator.Stream, error) {
	if !audio.Enabled && !video.Enabled {
		return nil, ErrNoMedia
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := &LocalStream{id: uuid.NewString()}
	if audio.Enabled {
		t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		}, "audio", stream.id)
		if err != nil {
			return nil, err
		}
		stream.tracks = append(stream.tracks, t)
	}
	if video.Enabled {
		t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		}, "video", stream.id)
		if err != nil {
			return nil, err
		}
		stream.tracks = append(stream.tracks, t)
	}
	m.logger.Debug().
		Str("stream", stream.id).
		Bool("audio", audio.Enabled).
		Bool("video", video.Enabled).
		Int("width", video.Width).
		Int("height", video.Height).
		Msg("local stream created")
	return stream, nil
}
