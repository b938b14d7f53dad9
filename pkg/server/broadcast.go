package server

import (
	"certroom/pkg/protocol"
)

// delivery is the per-recipient outcome of a fan-out. Fan-outs never abort:
// the caller inspects the outcomes, logs failures, and moves on.
type delivery struct {
	sess *Session
	err  error
}

// fanoutMessage sends text to every target, best effort. A send that fails
// (recipient already gone, broken pipe) is recorded, not propagated.
func fanoutMessage(targets []*Session, text string) []delivery {
	results := make([]delivery, 0, len(targets))
	for _, sess := range targets {
		results = append(results, delivery{sess: sess, err: sess.Conn.WriteMessage(text)})
	}
	return results
}

// broadcastRoomList recomputes the room-name snapshot and sends it to every
// connected session, whether or not the change is relevant to them. That is
// the protocol's choice: the client treats each ROOM_LIST as the full truth.
func (s *Server) broadcastRoomList() {
	msg := protocol.RoomListMessage(s.rooms.Snapshot())

	for _, d := range fanoutMessage(s.sessions.All(), msg) {
		if d.err != nil {
			debugLog.Printf("Session %d: room-list send failed: %v", d.sess.ID, d.err)
			s.metrics.RecordBroadcastFailure()
		}
	}
}

// broadcastChat relays a chat line to every member of room except the
// sender. Delivery is best effort, same as the room list.
func (s *Server) broadcastChat(room string, sender *Session, text string) {
	msg := protocol.ChatLine(room, sender.Identity, text)

	members := s.rooms.Members(room)
	targets := make([]*Session, 0, len(members))
	for _, sess := range members {
		if sess.ID == sender.ID {
			continue
		}
		targets = append(targets, sess)
	}

	for _, d := range fanoutMessage(targets, msg) {
		if d.err != nil {
			debugLog.Printf("Session %d: chat send failed: %v", d.sess.ID, d.err)
			s.metrics.RecordBroadcastFailure()
		}
	}

	s.metrics.RecordMessageRelayed()
}

// sendRoomList replies with the current room-list snapshot to one session.
func (s *Server) sendRoomList(sess *Session) error {
	return sess.Conn.WriteMessage(protocol.RoomListMessage(s.rooms.Snapshot()))
}
