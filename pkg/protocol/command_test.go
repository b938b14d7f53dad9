package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{"room list", "GET_ROOM_LIST", Command{Kind: KindGetRoomList}},
		{"create room", "CREATE_ROOM:general", Command{Kind: KindCreateRoom, Room: "general"}},
		{"join room", "JOIN_ROOM:general", Command{Kind: KindJoinRoom, Room: "general"}},
		{"create with empty name", "CREATE_ROOM:", Command{Kind: KindCreateRoom, Room: ""}},
		{"join with empty name", "JOIN_ROOM:", Command{Kind: KindJoinRoom, Room: ""}},
		{"plain chat", "hello everyone", Command{Kind: KindChat, Text: "hello everyone"}},
		{"empty line is chat", "", Command{Kind: KindChat, Text: ""}},
		{"command not at start is chat", "say GET_ROOM_LIST", Command{Kind: KindChat, Text: "say GET_ROOM_LIST"}},
		{"lowercase is chat", "get_room_list", Command{Kind: KindChat, Text: "get_room_list"}},
		{"list with trailing text is chat", "GET_ROOM_LIST please", Command{Kind: KindChat, Text: "GET_ROOM_LIST please"}},
		{"name with extra colon kept verbatim", "JOIN_ROOM:a:b", Command{Kind: KindJoinRoom, Room: "a:b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.line))
		})
	}
}

func TestValidRoomName(t *testing.T) {
	tests := []struct {
		name  string
		room  string
		valid bool
	}{
		{"simple", "general", true},
		{"with spaces", "dev chat", true},
		{"unicode", "日本語", true},
		{"max length", strings.Repeat("a", MaxRoomNameLength), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", MaxRoomNameLength+1), false},
		{"comma corrupts list", "a,b", false},
		{"colon corrupts command", "a:b", false},
		{"newline", "a\nb", false},
		{"tab", "a\tb", false},
		{"delete char", "a\x7fb", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidRoomName(tt.room))
		})
	}
}

func TestRoomListMessage(t *testing.T) {
	assert.Equal(t, "ROOM_LIST:No rooms available", RoomListMessage(nil))
	assert.Equal(t, "ROOM_LIST:No rooms available", RoomListMessage([]string{}))
	assert.Equal(t, "ROOM_LIST:general", RoomListMessage([]string{"general"}))
	assert.Equal(t, "ROOM_LIST:dev,general,random", RoomListMessage([]string{"dev", "general", "random"}))
}

func TestReplyFormats(t *testing.T) {
	assert.Equal(t, "Joined room: general", JoinedReply("general"))
	assert.Equal(t, "Room 'ghost' does not exist.", RoomMissingReply("ghost"))
	assert.Equal(t, "Room name 'a,b' is not allowed.", InvalidRoomReply("a,b"))
	assert.Equal(t, "[general] alice: hi there", ChatLine("general", "alice", "hi there"))
}
