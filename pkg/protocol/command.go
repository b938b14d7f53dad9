package protocol

import (
	"fmt"
	"strings"
)

// Literal wire strings. These are fixed: the graphical client matches on
// them verbatim.
const (
	CmdGetRoomList   = "GET_ROOM_LIST"
	PrefixCreateRoom = "CREATE_ROOM:"
	PrefixJoinRoom   = "JOIN_ROOM:"

	RoomListPrefix  = "ROOM_LIST:"
	NoRoomsSentinel = "No rooms available"
	NotInRoomReply  = "Please join a room first."

	// Sent before closing a connection whose certificate yields no identity.
	NoCertificateReply = "Client certificate is required"
	NoCommonNameReply  = "Username is required"
)

// MaxRoomNameLength caps room names so ROOM_LIST replies stay well under the
// frame limit even with many rooms.
const MaxRoomNameLength = 64

// CommandKind identifies the operation a client message requests.
type CommandKind int

const (
	// KindChat is any text that is not a recognized command. It is relayed
	// to the sender's current room.
	KindChat CommandKind = iota
	KindGetRoomList
	KindCreateRoom
	KindJoinRoom
)

// Command is one parsed client message.
type Command struct {
	Kind CommandKind
	Room string // room name for KindCreateRoom / KindJoinRoom
	Text string // original text for KindChat
}

// ParseCommand classifies a client message. Room-name validity is not
// checked here; the dispatcher decides how to answer a malformed name.
func ParseCommand(line string) Command {
	switch {
	case line == CmdGetRoomList:
		return Command{Kind: KindGetRoomList}
	case strings.HasPrefix(line, PrefixCreateRoom):
		return Command{Kind: KindCreateRoom, Room: strings.TrimPrefix(line, PrefixCreateRoom)}
	case strings.HasPrefix(line, PrefixJoinRoom):
		return Command{Kind: KindJoinRoom, Room: strings.TrimPrefix(line, PrefixJoinRoom)}
	default:
		return Command{Kind: KindChat, Text: line}
	}
}

// ValidRoomName reports whether a room name can appear in a ROOM_LIST reply
// without corrupting it. Commas are the list separator, colons are the
// command separator, and control characters have no business in a name.
func ValidRoomName(name string) bool {
	if name == "" || len(name) > MaxRoomNameLength {
		return false
	}
	for _, r := range name {
		if r == ',' || r == ':' || r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// RoomListMessage formats the room-list reply for the given snapshot.
func RoomListMessage(names []string) string {
	if len(names) == 0 {
		return RoomListPrefix + NoRoomsSentinel
	}
	return RoomListPrefix + strings.Join(names, ",")
}

// JoinedReply formats the acknowledgement for a successful JOIN_ROOM.
func JoinedReply(room string) string {
	return fmt.Sprintf("Joined room: %s", room)
}

// RoomMissingReply formats the soft error for joining a nonexistent room.
func RoomMissingReply(room string) string {
	return fmt.Sprintf("Room '%s' does not exist.", room)
}

// InvalidRoomReply formats the soft error for a room name that cannot be
// represented on the wire.
func InvalidRoomReply(room string) string {
	return fmt.Sprintf("Room name '%s' is not allowed.", room)
}

// ChatLine formats a relayed chat message.
func ChatLine(room, sender, text string) string {
	return fmt.Sprintf("[%s] %s: %s", room, sender, text)
}
