package adapter

import (
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS auth_user (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	pending_new_email TEXT NOT NULL DEFAULT '',
	avatar TEXT NOT NULL DEFAULT '',
	current_login_code TEXT NOT NULL DEFAULT '',
	tokens TEXT NOT NULL DEFAULT '',
	servers TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
)`

// SQLiteAdapter is a third, test- and single-binary-friendly Identity Store
// backend, grounded on themadorg-madmail's direct dependency on the
// pure-Go modernc.org/sqlite driver (also pulled transitively by its
// go-imap-sql companion module).
type SQLiteAdapter struct {
	*sqlAdapter
}

// Open connects to dsn (a modernc.org/sqlite DSN, e.g. "file:chat.db" or
// "file::memory:?cache=shared" for tests).
func (s *SQLiteAdapter) Open(dsn string) error {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return err
	}
	s.sqlAdapter.db = db
	return nil
}

func init() {
	Register("sqlite", &SQLiteAdapter{sqlAdapter: newSQLAdapter("sqlite", sqliteSchema, false, false)})
}
