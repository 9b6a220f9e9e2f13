package adapter

import (
	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS chat_member (
	id BIGINT PRIMARY KEY AUTO_INCREMENT,
	userid VARCHAR(255) NOT NULL UNIQUE,
	display_name VARCHAR(255) NOT NULL,
	is_owner BOOLEAN NOT NULL DEFAULT FALSE,
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS chat_banned (
	userid VARCHAR(255) PRIMARY KEY
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS chat_room (
	id BIGINT PRIMARY KEY AUTO_INCREMENT,
	roomid VARCHAR(255) NOT NULL UNIQUE,
	admin_only_send BOOLEAN NOT NULL DEFAULT FALSE,
	admin_only_view BOOLEAN NOT NULL DEFAULT FALSE,
	created_at DATETIME NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS chat_message (
	id BIGINT PRIMARY KEY AUTO_INCREMENT,
	timestamp DATETIME NOT NULL,
	sender_id BIGINT NOT NULL,
	room_id BIGINT NOT NULL,
	msg_type VARCHAR(16) NOT NULL,
	msg_text TEXT,
	referencing_id BIGINT,
	emoji VARCHAR(32),
	FOREIGN KEY (sender_id) REFERENCES chat_member(id),
	FOREIGN KEY (room_id) REFERENCES chat_room(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

// MySQLAdapter is the MySQL-backed Chat Store adapter.
type MySQLAdapter struct{ *sqlAdapter }

func (a *MySQLAdapter) Open(dsn string) error {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func init() {
	Register("mysql", &MySQLAdapter{sqlAdapter: newSQLAdapter("mysql", mysqlSchema, false)})
}
