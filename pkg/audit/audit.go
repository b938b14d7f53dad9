// Package audit records connection and room lifecycle events to SQLite.
// It is an operational log - who connected when, which rooms came and went.
// Message bodies are never recorded.
package audit

import (
	"database/sql"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// EventType identifies what happened.
type EventType string

const (
	EventConnect     EventType = "connect"
	EventDisconnect  EventType = "disconnect"
	EventRoomCreated EventType = "room_created"
	EventRoomDeleted EventType = "room_deleted"
)

// Event is one audit record.
type Event struct {
	Time       time.Time
	Type       EventType
	Identity   string
	RemoteAddr string
	Room       string
}

const eventBufferSize = 256

// Log is an append-only audit log backed by SQLite. Writes go through a
// buffered channel drained by a single writer goroutine, so recording an
// event never blocks a connection handler; when the buffer is full the
// event is counted as dropped instead.
type Log struct {
	db      *sql.DB
	events  chan Event
	quit    chan struct{}
	done    chan struct{}
	dropped atomic.Uint64
}

// Open opens (creating if necessary) the audit database at path and starts
// the writer.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		type TEXT NOT NULL,
		identity TEXT NOT NULL DEFAULT '',
		remote_addr TEXT NOT NULL DEFAULT '',
		room TEXT NOT NULL DEFAULT ''
	);`); err != nil {
		db.Close()
		return nil, err
	}

	l := &Log{
		db:     db,
		events: make(chan Event, eventBufferSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go l.writeLoop()

	return l, nil
}

// Record queues an event for writing. Never blocks; a full buffer (or a
// closed log) drops the event and bumps the dropped counter. Handlers may
// race Close during shutdown, which is why the channel itself is never
// closed.
func (l *Log) Record(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	select {
	case l.events <- ev:
	default:
		l.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to a full buffer or a failed
// insert.
func (l *Log) Dropped() uint64 {
	return l.dropped.Load()
}

// Close flushes queued events and closes the database.
func (l *Log) Close() error {
	close(l.quit)
	<-l.done
	return l.db.Close()
}

func (l *Log) writeLoop() {
	defer close(l.done)

	for {
		select {
		case <-l.quit:
			// Drain whatever is already queued, then stop
			for {
				select {
				case ev := <-l.events:
					l.write(ev)
				default:
					return
				}
			}
		case ev := <-l.events:
			l.write(ev)
		}
	}
}

func (l *Log) write(ev Event) {
	// Insert failures are swallowed on purpose: the audit log must never
	// take the relay down. They surface through the dropped counter.
	_, err := l.db.Exec(
		`INSERT INTO audit_events (at, type, identity, remote_addr, room)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.Time.UnixMilli(), string(ev.Type), ev.Identity, ev.RemoteAddr, ev.Room,
	)
	if err != nil {
		l.dropped.Add(1)
	}
}

// Recent returns up to limit most recent events, newest first. Intended for
// operator tooling and tests.
func (l *Log) Recent(limit int) ([]Event, error) {
	rows, err := l.db.Query(
		`SELECT at, type, identity, remote_addr, room
		 FROM audit_events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var at int64
		var typ string
		if err := rows.Scan(&at, &typ, &ev.Identity, &ev.RemoteAddr, &ev.Room); err != nil {
			return nil, err
		}
		ev.Time = time.UnixMilli(at)
		ev.Type = EventType(typ)
		events = append(events, ev)
	}
	return events, rows.Err()
}
