package adapter

import (
	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chat_member (
	id BIGSERIAL PRIMARY KEY,
	userid VARCHAR(255) NOT NULL UNIQUE,
	display_name VARCHAR(255) NOT NULL,
	is_owner BOOLEAN NOT NULL DEFAULT FALSE,
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_banned (
	userid VARCHAR(255) PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS chat_room (
	id BIGSERIAL PRIMARY KEY,
	roomid VARCHAR(255) NOT NULL UNIQUE,
	admin_only_send BOOLEAN NOT NULL DEFAULT FALSE,
	admin_only_view BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_message (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	sender_id BIGINT NOT NULL REFERENCES chat_member(id),
	room_id BIGINT NOT NULL REFERENCES chat_room(id),
	msg_type VARCHAR(16) NOT NULL,
	msg_text TEXT,
	referencing_id BIGINT,
	emoji VARCHAR(32)
);
`

// PostgresAdapter is the Postgres-backed Chat Store adapter.
type PostgresAdapter struct{ *sqlAdapter }

func (a *PostgresAdapter) Open(dsn string) error {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func init() {
	Register("postgres", &PostgresAdapter{sqlAdapter: newSQLAdapter("postgres", postgresSchema, true)})
}
