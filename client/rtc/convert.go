package rtc

import (
	"errors"
	"fmt"

	"github.com/adwski/webrtc-rooms/backend/model"
	"github.com/adwski/webrtc-rooms/client/orchestrator"
	"github.com/pion/webrtc/v4"
)

var ErrSDPType = errors.New("unknown sdp type")

func toSessionDescription(d model.SessionDescription) (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(d.Type)
	if t == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %q", ErrSDPType, d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

func fromSessionDescription(d webrtc.SessionDescription) model.SessionDescription {
	return model.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

// label and id travel as sdpMLineIndex and sdpMid.
func toICECandidateInit(c model.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.ID,
		SDPMLineIndex: c.Label,
	}
}

func fromICECandidateInit(c webrtc.ICECandidateInit) model.Candidate {
	return model.Candidate{
		Label:     c.SDPMLineIndex,
		ID:        c.SDPMid,
		Candidate: c.Candidate,
	}
}

func toConnectionState(s webrtc.PeerConnectionState) (orchestrator.ConnectionState, bool) {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return orchestrator.ConnectionStateConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return orchestrator.ConnectionStateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return orchestrator.ConnectionStateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return orchestrator.ConnectionStateFailed, true
	case webrtc.PeerConnectionStateClosed:
		return orchestrator.ConnectionStateClosed, true
	}
	return "", false
}

// ICEServers converts relay advertised servers into pion configuration.
func ICEServers(servers []model.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		if len(s.URLs) == 0 {
			continue
		}
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}
