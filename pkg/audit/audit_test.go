package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	return l
}

func TestRecordAndRecent(t *testing.T) {
	l := openTestLog(t)

	l.Record(Event{Type: EventConnect, Identity: "alice", RemoteAddr: "10.0.0.1:4242"})
	l.Record(Event{Type: EventRoomCreated, Identity: "alice", Room: "general"})
	l.Record(Event{Type: EventDisconnect, Identity: "alice", RemoteAddr: "10.0.0.1:4242"})

	// The writer is asynchronous; wait for the rows to land
	var events []Event
	require.Eventually(t, func() bool {
		var err error
		events, err = l.Recent(10)
		return err == nil && len(events) == 3
	}, 5*time.Second, 10*time.Millisecond)

	// Newest first
	assert.Equal(t, EventDisconnect, events[0].Type)
	assert.Equal(t, EventRoomCreated, events[1].Type)
	assert.Equal(t, "general", events[1].Room)
	assert.Equal(t, EventConnect, events[2].Type)
	assert.Equal(t, "alice", events[2].Identity)
	assert.Equal(t, "10.0.0.1:4242", events[2].RemoteAddr)
	assert.False(t, events[2].Time.IsZero())

	assert.Zero(t, l.Dropped())
	require.NoError(t, l.Close())
}

func TestCloseFlushesQueuedEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		l.Record(Event{Type: EventConnect, Identity: "burst"})
	}
	require.NoError(t, l.Close())

	// Reopen and confirm everything queued before Close was written
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.Recent(100)
	require.NoError(t, err)
	assert.Len(t, events, 50)
}

func TestRecordAfterCloseDoesNotPanic(t *testing.T) {
	l := openTestLog(t)
	require.NoError(t, l.Close())

	// A handler racing shutdown may still call Record; the event is dropped
	for i := 0; i < eventBufferSize+10; i++ {
		l.Record(Event{Type: EventDisconnect, Identity: "late"})
	}
	assert.NotZero(t, l.Dropped())
}

func TestRecentLimit(t *testing.T) {
	l := openTestLog(t)

	for i := 0; i < 10; i++ {
		l.Record(Event{Type: EventConnect, Identity: "alice"})
	}
	require.Eventually(t, func() bool {
		events, err := l.Recent(100)
		return err == nil && len(events) == 10
	}, 5*time.Second, 10*time.Millisecond)

	events, err := l.Recent(3)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	require.NoError(t, l.Close())
}
