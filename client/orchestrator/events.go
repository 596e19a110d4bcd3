package orchestrator

type EventKind string

const (
	EventRoomCreated  EventKind = "roomCreated"
	EventJoinedRoom   EventKind = "joinedRoom"
	EventLeftRoom     EventKind = "leftRoom"
	EventNewJoin      EventKind = "newJoin"
	EventNewUser      EventKind = "newUser"
	EventRemoveUser   EventKind = "removeUser"
	EventUserLeave    EventKind = "userLeave"
	EventUserHangup   EventKind = "userHangup"
	EventKicked       EventKind = "kicked"
	EventError        EventKind = "error"
	EventNotification EventKind = "notification"
)

// Event is a notification for the UI layer.
// EventRemoveUser with an empty PeerID means every remote user was removed.
type Event struct {
	Kind    EventKind
	Room    string
	PeerID  string
	Stream  Stream
	Err     error
	Message string
}
