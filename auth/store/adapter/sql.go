package adapter

import (
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	t "github.com/joshuafhiggins/realm-chat/auth/store/types"
)

// tokenSep/serverSep match spec.md §9's "delimited token sets" note: tokens
// are stored comma-delimited, joined servers pipe-delimited. The semantic
// type exposed to callers is always a Go []string treated as a set (tokens)
// or a duplicate-free ordered list (servers); only this file knows about
// the delimiters.
const (
	tokenSep  = ","
	serverSep = "|"
)

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sqlAdapter is a single Adapter implementation shared by the MySQL,
// Postgres, and SQLite backends; besides the driver name and DSN they
// differ only in the create-table DDL, the id-retrieval idiom, and row
// locking (see newSQLAdapter). sqlx.DB.Rebind adapts "?" placeholders to
// each driver's native bind style, so the query text itself is shared.
//
// Grounded on the teacher's adapter-per-backend pattern
// (server/store/adapter.Adapter implemented once per DB), condensed here
// because spec.md names no backend-specific behavior for the Identity
// Store — the three backends are genuinely interchangeable.
type sqlAdapter struct {
	name              string
	db                *sqlx.DB
	createTableSQL    string
	returningID       bool
	supportsForUpdate bool
}

// newSQLAdapter builds a shared adapter body; createTableSQL carries the one
// genuinely backend-specific statement (the auto-increment primary key
// syntax differs between MySQL/Postgres/SQLite), returningID selects the
// id-retrieval idiom (Postgres needs RETURNING id; MySQL/SQLite use
// LastInsertId), and supportsForUpdate selects whether read-modify-write
// methods take a row lock via "SELECT ... FOR UPDATE" inside a transaction
// (MySQL/Postgres) or just a transaction (SQLite, which has no row-level
// locking and serializes writers at the database level regardless).
func newSQLAdapter(name, createTableSQL string, returningID, supportsForUpdate bool) *sqlAdapter {
	return &sqlAdapter{name: name, createTableSQL: createTableSQL, returningID: returningID, supportsForUpdate: supportsForUpdate}
}

func (a *sqlAdapter) GetName() string { return a.name }

func (a *sqlAdapter) IsOpen() bool { return a.db != nil }

func (a *sqlAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *sqlAdapter) CreateSchema() error {
	_, err := a.db.Exec(a.createTableSQL)
	return err
}

// ResetSchema drops auth_user and recreates it from scratch, discarding
// every user, token, and joined-server record. Unlike CreateSchema (an
// idempotent "CREATE TABLE IF NOT EXISTS"), this is destructive.
func (a *sqlAdapter) ResetSchema() error {
	if _, err := a.db.Exec(`DROP TABLE IF EXISTS auth_user`); err != nil {
		return err
	}
	return a.CreateSchema()
}

func (a *sqlAdapter) rebind(query string) string {
	return a.db.Rebind(query)
}

func (a *sqlAdapter) scanUser(row *sql.Row) (*t.User, error) {
	var u t.User
	var tokens, servers string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PendingNewEmail, &u.Avatar,
		&u.CurrentLoginCode, &tokens, &servers, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Tokens = splitNonEmpty(tokens, tokenSep)
	u.JoinedServers = splitNonEmpty(servers, serverSep)
	return &u, nil
}

// withUserTx runs fn against username's row inside a transaction, holding a
// row lock for the duration on backends that support one (SELECT ... FOR
// UPDATE on MySQL/Postgres) so concurrent read-modify-write mutations (token
// and joined-server set updates) can't interleave and silently drop an
// update. SQLite has no row-level locking; the transaction alone still
// serializes writers there, since sqlite only allows one writer at a time.
func (a *sqlAdapter) withUserTx(username string, fn func(tx *sqlx.Tx, u *t.User) error) error {
	tx, err := a.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `SELECT id, username, email, pending_new_email, avatar,
		current_login_code, tokens, servers, created_at, updated_at
		FROM auth_user WHERE username = ?`
	if a.supportsForUpdate {
		query += ` FOR UPDATE`
	}
	u, err := a.scanUser(tx.QueryRow(a.rebind(query), username))
	if err != nil {
		return err
	}
	if err := fn(tx, u); err != nil {
		return err
	}
	return tx.Commit()
}

func (a *sqlAdapter) GetUserByUsername(username string) (*t.User, error) {
	row := a.db.QueryRow(a.rebind(`SELECT id, username, email, pending_new_email, avatar,
		current_login_code, tokens, servers, created_at, updated_at
		FROM auth_user WHERE username = ?`), username)
	return a.scanUser(row)
}

func (a *sqlAdapter) GetUserByEmail(email string) (*t.User, error) {
	row := a.db.QueryRow(a.rebind(`SELECT id, username, email, pending_new_email, avatar,
		current_login_code, tokens, servers, created_at, updated_at
		FROM auth_user WHERE email = ?`), email)
	return a.scanUser(row)
}

func (a *sqlAdapter) CreateUser(username, email string) (*t.User, error) {
	if _, err := a.GetUserByUsername(username); err == nil {
		return nil, ErrUsernameTaken
	} else if err != ErrNotFound {
		return nil, err
	}
	if _, err := a.GetUserByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if err != ErrNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	id, err := a.insertUser(username, email, now)
	if err != nil {
		return nil, err
	}
	return &t.User{ID: id, Username: username, Email: email, CreatedAt: now, UpdatedAt: now}, nil
}

// insertUser performs the one INSERT whose id-retrieval idiom differs by
// driver (LastInsertId works for MySQL/SQLite; Postgres needs RETURNING).
// Set by each backend's constructor.
func (a *sqlAdapter) insertUser(username, email string, now time.Time) (int64, error) {
	if a.returningID {
		var id int64
		row := a.db.QueryRow(a.rebind(`INSERT INTO auth_user
			(username, email, pending_new_email, avatar, current_login_code, tokens, servers, created_at, updated_at)
			VALUES (?, ?, '', '', '', '', '', ?, ?) RETURNING id`), username, email, now, now)
		if err := row.Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := a.db.Exec(a.rebind(`INSERT INTO auth_user
		(username, email, pending_new_email, avatar, current_login_code, tokens, servers, created_at, updated_at)
		VALUES (?, ?, '', '', '', '', '', ?, ?)`), username, email, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (a *sqlAdapter) DeleteUser(username string) error {
	_, err := a.db.Exec(a.rebind(`DELETE FROM auth_user WHERE username = ?`), username)
	return err
}

func (a *sqlAdapter) SetAvatar(username, avatar string) error {
	_, err := a.db.Exec(a.rebind(`UPDATE auth_user SET avatar = ?, updated_at = ? WHERE username = ?`),
		avatar, time.Now().UTC(), username)
	return err
}

func (a *sqlAdapter) SetLoginCode(username, code string) error {
	_, err := a.db.Exec(a.rebind(`UPDATE auth_user SET current_login_code = ?, updated_at = ? WHERE username = ?`),
		code, time.Now().UTC(), username)
	return err
}

func (a *sqlAdapter) ClearLoginCode(username string) error {
	return a.SetLoginCode(username, "")
}

func (a *sqlAdapter) VerifyLoginCode(username, code string) (bool, error) {
	u, err := a.GetUserByUsername(username)
	if err != nil {
		return false, err
	}
	return u.CurrentLoginCode != "" && u.CurrentLoginCode == code, nil
}

func (a *sqlAdapter) AppendToken(username, token string) error {
	return a.withUserTx(username, func(tx *sqlx.Tx, u *t.User) error {
		if u.HasToken(token) {
			return nil
		}
		u.Tokens = append(u.Tokens, token)
		_, err := tx.Exec(a.rebind(`UPDATE auth_user SET tokens = ?, updated_at = ? WHERE username = ?`),
			strings.Join(u.Tokens, tokenSep), time.Now().UTC(), username)
		return err
	})
}

func (a *sqlAdapter) RemoveToken(username, token string) error {
	return a.withUserTx(username, func(tx *sqlx.Tx, u *t.User) error {
		if !u.HasToken(token) {
			return ErrTokenNotFound
		}
		kept := u.Tokens[:0]
		for _, tok := range u.Tokens {
			if tok != token {
				kept = append(kept, tok)
			}
		}
		_, err := tx.Exec(a.rebind(`UPDATE auth_user SET tokens = ?, updated_at = ? WHERE username = ?`),
			strings.Join(kept, tokenSep), time.Now().UTC(), username)
		return err
	})
}

func (a *sqlAdapter) SetPendingEmail(username, newEmail string) error {
	_, err := a.db.Exec(a.rebind(`UPDATE auth_user SET pending_new_email = ?, updated_at = ? WHERE username = ?`),
		newEmail, time.Now().UTC(), username)
	return err
}

func (a *sqlAdapter) CommitPendingEmail(username string) error {
	u, err := a.GetUserByUsername(username)
	if err != nil {
		return err
	}
	if u.PendingNewEmail == "" {
		return nil
	}
	_, err = a.db.Exec(a.rebind(`UPDATE auth_user SET email = ?, pending_new_email = '', updated_at = ? WHERE username = ?`),
		u.PendingNewEmail, time.Now().UTC(), username)
	return err
}

func (a *sqlAdapter) AddJoinedServer(username, endpoint string) error {
	return a.withUserTx(username, func(tx *sqlx.Tx, u *t.User) error {
		if u.HasJoined(endpoint) {
			return ErrAlreadyJoined
		}
		u.JoinedServers = append(u.JoinedServers, endpoint)
		_, err := tx.Exec(a.rebind(`UPDATE auth_user SET servers = ?, updated_at = ? WHERE username = ?`),
			strings.Join(u.JoinedServers, serverSep), time.Now().UTC(), username)
		return err
	})
}

func (a *sqlAdapter) RemoveJoinedServer(username, endpoint string) error {
	return a.withUserTx(username, func(tx *sqlx.Tx, u *t.User) error {
		if !u.HasJoined(endpoint) {
			return ErrNotJoined
		}
		kept := u.JoinedServers[:0]
		for _, s := range u.JoinedServers {
			if s != endpoint {
				kept = append(kept, s)
			}
		}
		_, err := tx.Exec(a.rebind(`UPDATE auth_user SET servers = ?, updated_at = ? WHERE username = ?`),
			strings.Join(kept, serverSep), time.Now().UTC(), username)
		return err
	})
}
