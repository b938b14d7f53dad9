package server

import (
	"sort"
	"sync"
)

// RoomDirectory is the concurrency-safe mapping from room name to member
// set. A room exists iff its member set is non-empty: rooms are created on
// first CREATE_ROOM and deleted the instant their last member leaves.
//
// Every operation that spans a membership check, a mutation, and a
// broadcast decision runs under the directory mutex as one critical
// section, so concurrent creates of the same name or a delete racing a
// join cannot lose updates. The session's room field is written inside the
// same critical section to keep the registry and the directory mutually
// consistent.
//
// Membership is single-room: joining or creating a room while already in
// one first leaves the prior room. The reference behavior left the stale
// membership in place; that was judged unintended.
type RoomDirectory struct {
	mu      sync.Mutex
	rooms   map[string]map[uint64]*Session
	metrics *Metrics
}

// NewRoomDirectory creates an empty room directory.
func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		rooms: make(map[string]map[uint64]*Session),
	}
}

// SetMetrics attaches metrics to the directory.
func (rd *RoomDirectory) SetMetrics(metrics *Metrics) {
	rd.metrics = metrics
}

// MoveResult describes what a Create or Join changed, so the caller can
// decide which broadcasts and audit events to emit.
type MoveResult struct {
	Created      bool   // A new room came into existence
	LeftPrior    string // Prior room the session was moved out of ("" if none)
	DeletedPrior bool   // Leaving the prior room emptied and deleted it
}

// Create ensures room name exists and moves sess into it, leaving any prior
// room first. The room-list broadcast is the caller's job.
func (rd *RoomDirectory) Create(sess *Session, name string) MoveResult {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	var res MoveResult
	res.LeftPrior, res.DeletedPrior = rd.leaveLocked(sess)

	members, ok := rd.rooms[name]
	if !ok {
		members = make(map[uint64]*Session)
		rd.rooms[name] = members
		res.Created = true
	}
	members[sess.ID] = sess
	sess.setRoom(name)

	rd.recordOpenRoomsLocked()
	return res
}

// Join moves sess into an existing room, leaving any prior room first.
// When the room doesn't exist, ok is false and no state changes at all.
func (rd *RoomDirectory) Join(sess *Session, name string) (MoveResult, bool) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	if _, exists := rd.rooms[name]; !exists {
		return MoveResult{}, false
	}

	var res MoveResult
	res.LeftPrior, res.DeletedPrior = rd.leaveLocked(sess)

	// The prior room may have been the target itself; if sess was its only
	// member the leave just deleted it, so re-create before re-adding.
	members, exists := rd.rooms[name]
	if !exists {
		members = make(map[uint64]*Session)
		rd.rooms[name] = members
	}
	members[sess.ID] = sess
	sess.setRoom(name)

	rd.recordOpenRoomsLocked()
	return res, true
}

// Leave removes sess from its current room (disconnect cleanup). Returns
// the room left ("" if sess was in none) and whether that room was deleted.
func (rd *RoomDirectory) Leave(sess *Session) (room string, deleted bool) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	room, deleted = rd.leaveLocked(sess)
	rd.recordOpenRoomsLocked()
	return room, deleted
}

// leaveLocked removes sess from its room and deletes the room if it
// emptied. Caller holds rd.mu.
func (rd *RoomDirectory) leaveLocked(sess *Session) (room string, deleted bool) {
	room = sess.Room()
	if room == "" {
		return "", false
	}

	members, ok := rd.rooms[room]
	if ok {
		delete(members, sess.ID)
		if len(members) == 0 {
			delete(rd.rooms, room)
			deleted = true
		}
	}
	sess.setRoom("")
	return room, deleted
}

// Snapshot returns the current room names in sorted order. Sorting keeps
// ROOM_LIST replies stable for clients that diff them.
func (rd *RoomDirectory) Snapshot() []string {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	names := make([]string, 0, len(rd.rooms))
	for name := range rd.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Members returns a snapshot of a room's member sessions. Nil if the room
// doesn't exist.
func (rd *RoomDirectory) Members(name string) []*Session {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	members, ok := rd.rooms[name]
	if !ok {
		return nil
	}

	result := make([]*Session, 0, len(members))
	for _, sess := range members {
		result = append(result, sess)
	}
	return result
}

// Count returns the number of open rooms.
func (rd *RoomDirectory) Count() int {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	return len(rd.rooms)
}

func (rd *RoomDirectory) recordOpenRoomsLocked() {
	if rd.metrics != nil {
		rd.metrics.RecordOpenRooms(len(rd.rooms))
	}
}
