package adapter

import (
	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS auth_user (
	id BIGINT PRIMARY KEY AUTO_INCREMENT,
	username VARCHAR(255) NOT NULL UNIQUE,
	email VARCHAR(255) NOT NULL UNIQUE,
	pending_new_email VARCHAR(255) NOT NULL DEFAULT '',
	avatar TEXT NOT NULL,
	current_login_code VARCHAR(6) NOT NULL DEFAULT '',
	tokens TEXT NOT NULL,
	servers TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// MySQLAdapter is the primary Identity Store backend, grounded directly on
// the teacher's own direct dependency on github.com/go-sql-driver/mysql.
type MySQLAdapter struct {
	*sqlAdapter
}

// Open connects to dsn (a go-sql-driver/mysql DSN, e.g.
// "user:pass@tcp(host:3306)/dbname?parseTime=true").
func (m *MySQLAdapter) Open(dsn string) error {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return err
	}
	m.sqlAdapter.db = db
	return nil
}

func init() {
	Register("mysql", &MySQLAdapter{sqlAdapter: newSQLAdapter("mysql", mysqlSchema, false, true)})
}
