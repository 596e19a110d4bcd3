package memory

import (
	"errors"
	"sync"

	"github.com/adwski/webrtc-rooms/backend/model"
)

var (
	ErrRoomNotFound = errors.New("room is not found")
	ErrNotAdmin     = errors.New("caller is not room admin")
)

// JoinResult describes the outcome of CreateOrJoinRoom.
type JoinResult struct {
	Room    model.Room
	Created bool
	// Existing holds members present before the caller joined.
	Existing []string
}

// MemStore is the room registry. Every membership mutation takes the write lock,
// so create-or-join decisions for the same room are linearized.
type MemStore struct {
	mx     *sync.RWMutex
	db     map[string]*model.Room
	byConn map[string]map[string]struct{}
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:     &sync.RWMutex{},
		db:     make(map[string]*model.Room),
		byConn: make(map[string]map[string]struct{}),
	}
}

func (ms *MemStore) CreateOrJoinRoom(roomID string, connID string) JoinResult {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok || len(room.Participants) == 0 {
		room = &model.Room{
			ID:    roomID,
			Admin: connID,
			Participants: map[string]model.Participant{
				connID: {ID: connID},
			},
		}
		ms.db[roomID] = room
		ms.track(roomID, connID)
		return JoinResult{Room: snapshot(room), Created: true}
	}

	existing := make([]string, 0, len(room.Participants))
	for _, id := range room.MemberIDs() {
		if id != connID {
			existing = append(existing, id)
		}
	}
	room.Participants[connID] = model.Participant{ID: connID}
	ms.track(roomID, connID)
	return JoinResult{Room: snapshot(room), Existing: existing}
}

// LeaveRoom removes connID from roomID. It returns the remaining members and
// whether connID was a member at all.
func (ms *MemStore) LeaveRoom(roomID string, connID string) ([]string, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	return ms.remove(roomID, connID)
}

// LeaveAll removes connID from every room it belongs to and returns the remaining
// members per room.
func (ms *MemStore) LeaveAll(connID string) map[string][]string {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	left := make(map[string][]string)
	for roomID := range ms.byConn[connID] {
		remaining, ok := ms.remove(roomID, connID)
		if ok {
			left[roomID] = remaining
		}
	}
	delete(ms.byConn, connID)
	return left
}

// Kick removes target from roomID if callerID is the room admin.
// The returned bool reports whether target was a member.
func (ms *MemStore) Kick(roomID, targetID, callerID string) (bool, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return false, ErrRoomNotFound
	}
	if room.Admin != callerID {
		return false, ErrNotAdmin
	}
	_, removed := ms.remove(roomID, targetID)
	return removed, nil
}

func (ms *MemStore) GetRoom(roomID string) (model.Room, error) {
	ms.mx.RLock()
	defer ms.mx.RUnlock()

	room, ok := ms.db[roomID]
	if !ok {
		return model.Room{}, ErrRoomNotFound
	}
	return snapshot(room), nil
}

func (ms *MemStore) Members(roomID string) []string {
	ms.mx.RLock()
	defer ms.mx.RUnlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil
	}
	return room.MemberIDs()
}

func (ms *MemStore) remove(roomID, connID string) ([]string, bool) {
	room, ok := ms.db[roomID]
	if !ok {
		return nil, false
	}
	if _, ok = room.Participants[connID]; !ok {
		return room.MemberIDs(), false
	}
	delete(room.Participants, connID)
	if rooms, ok := ms.byConn[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(ms.byConn, connID)
		}
	}
	if len(room.Participants) == 0 {
		delete(ms.db, roomID)
		return nil, true
	}
	return room.MemberIDs(), true
}

func (ms *MemStore) track(roomID, connID string) {
	rooms, ok := ms.byConn[connID]
	if !ok {
		rooms = make(map[string]struct{})
		ms.byConn[connID] = rooms
	}
	rooms[roomID] = struct{}{}
}

func snapshot(room *model.Room) model.Room {
	cp := model.Room{
		ID:           room.ID,
		Admin:        room.Admin,
		Participants: make(map[string]model.Participant, len(room.Participants)),
	}
	for id, p := range room.Participants {
		cp.Participants[id] = p
	}
	return cp
}
