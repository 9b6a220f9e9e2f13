package events

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

func TestAppendAssignsDenseIncreasingIndex(t *testing.T) {
	l := NewLog(nil)
	for i := 0; i < 5; i++ {
		e := l.Append(Event{Kind: KindUserJoined})
		if e.Index != uint32(i+1) {
			t.Fatalf("event %d got index %d, want %d", i, e.Index, i+1)
		}
	}
	if l.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", l.Len())
	}
}

func TestPollEventsSinceReturnsTailInOrder(t *testing.T) {
	l := NewLog(nil)
	kinds := []Kind{KindNewRoom, KindUserJoined, KindNewMessage, KindDeleteRoom}
	for _, k := range kinds {
		l.Append(Event{Kind: k})
	}

	tail := l.PollEventsSince(2)
	if len(tail) != 2 {
		t.Fatalf("got %d events, want 2", len(tail))
	}
	if tail[0].Kind != KindNewMessage || tail[1].Kind != KindDeleteRoom {
		t.Fatalf("got kinds %v, want [new_message delete_room]", []Kind{tail[0].Kind, tail[1].Kind})
	}
}

func TestPollEventsSinceAtOrPastEndReturnsNil(t *testing.T) {
	l := NewLog(nil)
	l.Append(Event{Kind: KindUserJoined})

	if got := l.PollEventsSince(1); got != nil {
		t.Fatalf("expected nil polling at the current length, got %v", got)
	}
	if got := l.PollEventsSince(5); got != nil {
		t.Fatalf("expected nil polling past the current length, got %v", got)
	}
}

// Append must durably record each event in the outbox table when one is
// configured, without failing the in-memory append if the write fails
// (spec.md §9's best-effort outbox).
func TestAppendWritesOutboxRow(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		t.Fatalf("opening sqlite outbox db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(EventLogSchema); err != nil {
		t.Fatalf("creating outbox schema: %v", err)
	}

	l := NewLog(db)
	l.Append(Event{Kind: KindNewRoom})
	l.Append(Event{Kind: KindNewMessage})

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM event_log`).Scan(&count); err != nil {
		t.Fatalf("counting outbox rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("outbox row count = %d, want 2", count)
	}

	var kind string
	if err := db.QueryRow(`SELECT kind FROM event_log WHERE idx = 1`).Scan(&kind); err != nil {
		t.Fatalf("reading outbox row 1: %v", err)
	}
	if kind != string(KindNewRoom) {
		t.Fatalf("outbox row 1 kind = %q, want %q", kind, KindNewRoom)
	}
}

func TestAppendSurvivesOutboxFailure(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		t.Fatalf("opening sqlite outbox db: %v", err)
	}
	// Deliberately don't create the event_log table: every outbox write
	// will fail, but Append must still succeed and grow the in-memory log.
	defer db.Close()

	l := NewLog(db)
	e := l.Append(Event{Kind: KindBanned})
	if e.Index != 1 {
		t.Fatalf("expected append to succeed despite outbox failure, got index %d", e.Index)
	}
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
}
