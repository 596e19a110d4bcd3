// Package session tracks this client's room membership and role.
//
// State is not safe for concurrent use; the orchestrator owns it and
// serializes access.
package session

// State is the client's view of the room it is in.
type State struct {
	RoomID      string
	SelfID      string
	IsAdmin     bool
	IsInitiator bool
	// IsReady is true once at least two participants are in the room.
	IsReady bool
	// InCall is set once ICE candidates start flowing from any peer.
	InCall  bool
	Members []string
}

func (s State) InRoom() bool {
	return s.RoomID != ""
}

// Created records that this client created roomID and therefore administers it.
func (s *State) Created(roomID, selfID string) {
	s.RoomID = roomID
	s.SelfID = selfID
	s.IsAdmin = true
	s.IsInitiator = true
}

// Joined records that this client joined an existing room.
func (s *State) Joined(roomID, selfID string) {
	s.RoomID = roomID
	s.SelfID = selfID
	s.IsReady = true
}

// PeerJoining records that someone else joined our room.
func (s *State) PeerJoining() {
	s.IsReady = true
}

// Ready applies a ready notification about peerID. A client already in a call
// becomes initiator towards newcomers.
func (s *State) Ready(peerID string, members []string) {
	if peerID != s.SelfID && s.InCall {
		s.IsInitiator = true
	}
	if members != nil {
		s.Members = append(s.Members[:0:0], members...)
	}
}

// PeerLeft drops peerID from the member list. Whoever stays offers to the next joiner.
func (s *State) PeerLeft(peerID string) {
	for i, id := range s.Members {
		if id == peerID {
			s.Members = append(s.Members[:i:i], s.Members[i+1:]...)
			break
		}
	}
	s.IsInitiator = true
}

// CanConnect reports whether connection setup may start.
func (s State) CanConnect(hasLocalStream bool) bool {
	return hasLocalStream && s.IsReady
}

// Reset clears everything, used on leave and kick.
func (s *State) Reset() {
	*s = State{}
}
