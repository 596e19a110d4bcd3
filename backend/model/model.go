package model

import (
	"encoding/json"
	"sort"
)

type Room struct {
	ID           string                 `json:"room_id"`
	Admin        string                 `json:"admin"`
	Participants map[string]Participant `json:"participants"`
}

type Participant struct {
	ID string `json:"id"`
}

// MemberIDs returns participant ids in a stable order.
func (r *Room) MemberIDs() []string {
	ids := make([]string, 0, len(r.Participants))
	for id := range r.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Room control types. Client->relay: CreateOrJoin, LeaveRoom, Kickout.
// Relay->client: Created, Join, Joined, Ready, LeftRoom, Kickout.
const (
	TypeCreateOrJoin = "create or join"
	TypeCreated      = "created"
	TypeJoin         = "join"
	TypeJoined       = "joined"
	TypeReady        = "ready"
	TypeLeaveRoom    = "leave room"
	TypeLeftRoom     = "left room"
	TypeKickout      = "kickout"
)

// Peer signal types. These are routed by the relay without looking at the payload.
const (
	TypeGotStream = "gotstream"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeLeave     = "leave"
	TypeHangup    = "hangup"
)

// IsSignal reports whether envelopes of type t are routed peer signals.
func IsSignal(t string) bool {
	switch t {
	case TypeGotStream, TypeOffer, TypeAnswer, TypeCandidate, TypeLeave, TypeHangup:
		return true
	}
	return false
}

// Envelope is the single frame type exchanged over the signaling transport.
type Envelope struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	SRC     string          `json:"src,omitempty"` // for inbound envelopes relay re-assigns this based on connection
	DST     string          `json:"dst,omitempty"`
	ID      string          `json:"id,omitempty"`
	Members []string        `json:"members,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionDescription is the payload of offer and answer envelopes.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is the payload of candidate envelopes.
type Candidate struct {
	Label     *uint16 `json:"label,omitempty"`
	ID        *string `json:"id,omitempty"`
	Candidate string  `json:"candidate"`
}

// NewSignal builds a peer signal envelope with v marshaled as payload. A nil v leaves payload empty.
func NewSignal(typ string, v any) (Envelope, error) {
	env := Envelope{Type: typ}
	if v == nil {
		return env, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return env, err
	}
	env.Payload = b
	return env, nil
}

// ICEServer describes STUN/TURN servers advertised to clients.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type Wire struct {
	RX chan Envelope
	TX chan Envelope
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Envelope),
		TX: make(chan Envelope),
	}
}

// NewBufferedWire returns a wire whose TX side can hold size envelopes without a reader.
func NewBufferedWire(size int) Wire {
	return Wire{
		RX: make(chan Envelope),
		TX: make(chan Envelope, size),
	}
}
