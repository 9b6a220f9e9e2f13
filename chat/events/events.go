// Package events implements the Event Log & Poller Interface (spec.md
// §4.5, C5): an in-process, mutex-guarded, append-only vector of
// (index, payload) pairs with a long-poll-style "since index" read path.
//
// Grounded on the teacher's pres.go/hub.go pattern of a single
// mutex-guarded structure feeding every subscriber from one owning
// goroutine's worth of state — there is no separate publish/subscribe
// fan-out here because polling clients pull rather than the server
// pushing (spec.md §4.5's "clients call at ~1 Hz").
package events

import (
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	t "github.com/joshuafhiggins/realm-chat/chat/store/types"
)

// Kind discriminates the event payload sum type (spec.md §3).
type Kind string

const (
	KindNewMessage Kind = "new_message"
	KindNewRoom    Kind = "new_room"
	KindDeleteRoom Kind = "delete_room"
	KindUserJoined Kind = "user_joined"
	KindUserLeft   Kind = "user_left"
	KindPromoted   Kind = "promoted"
	KindDemoted    Kind = "demoted"
	KindKicked     Kind = "kicked"
	KindBanned     Kind = "banned"
)

// Event is one entry of the log. Only the field(s) matching Kind are
// populated; this is the same discriminated-union discipline as
// chat/store/types.Message, applied to the event payload algebra
// (spec.md §3).
type Event struct {
	Index   uint32    `json:"index"`
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
	Message *t.Message `json:"message,omitempty"`
	Room    *t.Room    `json:"room,omitempty"`
	Member  *t.Member  `json:"member,omitempty"`
	RoomID  string     `json:"roomid,omitempty"`
	Userid  string     `json:"userid,omitempty"`
}

var (
	logLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realm_chat_event_log_length",
		Help: "Number of events currently held in a chat server's in-process event log.",
	})
	eventsAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realm_chat_events_appended_total",
		Help: "Total events appended to the chat server's event log, by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(logLength, eventsAppended)
}

// Log is the append-only, mutex-guarded event vector for one chat server
// instance (spec.md §4.5). It lives in memory only and is not rebuilt from
// any table on restart.
type Log struct {
	mu     sync.Mutex
	events []Event

	// outbox, if non-nil, is used to durably record each appended event in
	// the same critical section as the in-memory append (spec.md §9's
	// "recommended: transactional outbox", realized here as a best-effort
	// write to an event_log table rather than full two-phase commit with
	// the triggering row write — see DESIGN.md). Kept as *sqlx.DB rather
	// than *sql.DB so the insert can go through Rebind: the outbox is
	// shared across the MySQL/Postgres/SQLite backends, and Postgres needs
	// "$1,$2,$3" placeholders where the other two accept "?".
	outbox *sqlx.DB
}

// NewLog builds an empty Log. outbox may be nil, in which case no outbox
// rows are written. Either way nothing reads the outbox back, so a
// restarted log starts again at index 0 (spec.md §4.5 explicitly permits
// this).
func NewLog(outbox *sqlx.DB) *Log {
	return &Log{outbox: outbox}
}

// Append assigns the next index under the write lock and appends e,
// mirroring whatever DB write is the true source of truth so that commit
// order and append order agree (spec.md §5's ordering guarantee). Returns
// the appended Event with its Index populated.
func (l *Log) Append(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Index = uint32(len(l.events)) + 1
	e.At = time.Now().UTC()
	l.events = append(l.events, e)

	if l.outbox != nil {
		// Best-effort durability write; a failure here does not roll back
		// the append; a missed outbox row does not affect the live poller
		// contract. Rebind translates "?" to each
		// backend's native placeholder style (e.g. Postgres' "$1,$2,$3").
		_, _ = l.outbox.Exec(
			l.outbox.Rebind(`INSERT INTO event_log (idx, kind, at) VALUES (?, ?, ?)`),
			e.Index, string(e.Kind), e.At)
	}

	logLength.Set(float64(len(l.events)))
	eventsAppended.WithLabelValues(string(e.Kind)).Inc()
	return e
}

// PollEventsSince returns every event with Index > afterIndex, in index
// order (spec.md §4.5's polling contract).
func (l *Log) PollEventsSince(afterIndex uint32) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if afterIndex >= uint32(len(l.events)) {
		return nil
	}
	out := make([]Event, len(l.events)-int(afterIndex))
	copy(out, l.events[afterIndex:])
	return out
}

// Len reports the current log length (also exported as a Prometheus
// gauge via Append).
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// EventLogSchema creates the outbox table used for restart recovery.
const EventLogSchema = `
CREATE TABLE IF NOT EXISTS event_log (
	idx INTEGER PRIMARY KEY,
	kind VARCHAR(32) NOT NULL,
	at TIMESTAMP NOT NULL
);
`
