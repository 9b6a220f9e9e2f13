package adapter

import (
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_member (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	userid TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	is_owner BOOLEAN NOT NULL DEFAULT 0,
	is_admin BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_banned (
	userid TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS chat_room (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	roomid TEXT NOT NULL UNIQUE,
	admin_only_send BOOLEAN NOT NULL DEFAULT 0,
	admin_only_view BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_message (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	sender_id INTEGER NOT NULL REFERENCES chat_member(id),
	room_id INTEGER NOT NULL REFERENCES chat_room(id),
	msg_type TEXT NOT NULL,
	msg_text TEXT,
	referencing_id INTEGER,
	emoji TEXT
);
`

// SQLiteAdapter is the SQLite-backed Chat Store adapter, primarily useful
// for tests and single-node deployments.
type SQLiteAdapter struct{ *sqlAdapter }

func (a *SQLiteAdapter) Open(dsn string) error {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func init() {
	Register("sqlite", &SQLiteAdapter{sqlAdapter: newSQLAdapter("sqlite", sqliteSchema, false)})
}
