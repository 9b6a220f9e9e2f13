package adapter

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	t "github.com/joshuafhiggins/realm-chat/chat/store/types"
)

// sqlAdapter is a single Adapter implementation shared by the MySQL,
// Postgres, and SQLite backends, the same condensation used in
// auth/store/adapter/sql.go: only the create-table DDL and the
// id-retrieval idiom differ between drivers, and sqlx.DB.Rebind adapts "?"
// placeholders to each driver's native bind style.
type sqlAdapter struct {
	name        string
	db          *sqlx.DB
	schemaSQL   string
	returningID bool
}

func newSQLAdapter(name, schemaSQL string, returningID bool) *sqlAdapter {
	return &sqlAdapter{name: name, schemaSQL: schemaSQL, returningID: returningID}
}

func (a *sqlAdapter) GetName() string { return a.name }
func (a *sqlAdapter) IsOpen() bool    { return a.db != nil }

// SqlxDB exposes the underlying *sqlx.DB so callers that need a raw handle
// for concerns the Adapter interface deliberately doesn't expose — here,
// the event log's outbox table (chat/events.NewLog) — can get one via a
// type assertion against this optional interface instead of widening
// Adapter itself. Returning *sqlx.DB rather than *sql.DB lets the caller
// reuse Rebind for its own placeholder-portable SQL.
func (a *sqlAdapter) SqlxDB() *sqlx.DB {
	return a.db
}

func (a *sqlAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *sqlAdapter) CreateSchema() error {
	_, err := a.db.Exec(a.schemaSQL)
	return err
}

// ResetSchema drops every chat table and recreates them from scratch,
// discarding all members, bans, rooms, and messages. Unlike CreateSchema
// (idempotent "CREATE TABLE IF NOT EXISTS"), this is destructive.
// chat_message is dropped first since it references chat_member/chat_room.
func (a *sqlAdapter) ResetSchema() error {
	for _, table := range []string{"chat_message", "chat_room", "chat_banned", "chat_member"} {
		if _, err := a.db.Exec(`DROP TABLE IF EXISTS ` + table); err != nil {
			return err
		}
	}
	return a.CreateSchema()
}

func (a *sqlAdapter) rebind(q string) string { return a.db.Rebind(q) }

// --- Members ---

func (a *sqlAdapter) scanMember(row *sql.Row) (*t.Member, error) {
	var m t.Member
	err := row.Scan(&m.ID, &m.Userid, &m.DisplayName, &m.IsOwner, &m.IsAdmin, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const memberCols = `id, userid, display_name, is_owner, is_admin, created_at, updated_at`

func (a *sqlAdapter) GetMemberByUserid(userid string) (*t.Member, error) {
	row := a.db.QueryRow(a.rebind(`SELECT `+memberCols+` FROM chat_member WHERE userid = ?`), userid)
	return a.scanMember(row)
}

func (a *sqlAdapter) GetMemberByID(id int64) (*t.Member, error) {
	row := a.db.QueryRow(a.rebind(`SELECT `+memberCols+` FROM chat_member WHERE id = ?`), id)
	return a.scanMember(row)
}

func (a *sqlAdapter) CreateMember(userid, displayName string, isOwner, isAdmin bool) (*t.Member, error) {
	if _, err := a.GetMemberByUserid(userid); err == nil {
		return nil, ErrAlreadyJoined
	} else if err != ErrNotFound {
		return nil, err
	}
	now := time.Now().UTC()
	if a.returningID {
		var id int64
		row := a.db.QueryRow(a.rebind(`INSERT INTO chat_member
			(userid, display_name, is_owner, is_admin, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING id`), userid, displayName, isOwner, isAdmin, now, now)
		if err := row.Scan(&id); err != nil {
			return nil, err
		}
		return &t.Member{ID: id, Userid: userid, DisplayName: displayName, IsOwner: isOwner, IsAdmin: isAdmin, CreatedAt: now, UpdatedAt: now}, nil
	}
	res, err := a.db.Exec(a.rebind(`INSERT INTO chat_member
		(userid, display_name, is_owner, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`), userid, displayName, isOwner, isAdmin, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &t.Member{ID: id, Userid: userid, DisplayName: displayName, IsOwner: isOwner, IsAdmin: isAdmin, CreatedAt: now, UpdatedAt: now}, nil
}

func (a *sqlAdapter) SetMemberRole(userid string, isAdmin bool) error {
	_, err := a.db.Exec(a.rebind(`UPDATE chat_member SET is_admin = ?, updated_at = ? WHERE userid = ?`),
		isAdmin, time.Now().UTC(), userid)
	return err
}

func (a *sqlAdapter) DeleteMember(userid string) error {
	_, err := a.db.Exec(a.rebind(`DELETE FROM chat_member WHERE userid = ?`), userid)
	return err
}

func (a *sqlAdapter) MemberCount() (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM chat_member`).Scan(&n)
	return n, err
}

func (a *sqlAdapter) Ban(userid string) error {
	if banned, err := a.IsBanned(userid); err != nil {
		return err
	} else if banned {
		return nil
	}
	_, err := a.db.Exec(a.rebind(`INSERT INTO chat_banned (userid) VALUES (?)`), userid)
	return err
}

func (a *sqlAdapter) Pardon(userid string) error {
	_, err := a.db.Exec(a.rebind(`DELETE FROM chat_banned WHERE userid = ?`), userid)
	return err
}

func (a *sqlAdapter) IsBanned(userid string) (bool, error) {
	var n int
	err := a.db.QueryRow(a.rebind(`SELECT COUNT(*) FROM chat_banned WHERE userid = ?`), userid).Scan(&n)
	return n > 0, err
}

// --- Rooms ---

func (a *sqlAdapter) scanRoom(row *sql.Row) (*t.Room, error) {
	var r t.Room
	err := row.Scan(&r.ID, &r.RoomID, &r.AdminOnlySend, &r.AdminOnlyView, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const roomCols = `id, roomid, admin_only_send, admin_only_view, created_at`

func (a *sqlAdapter) GetRoomByRoomID(roomid string) (*t.Room, error) {
	row := a.db.QueryRow(a.rebind(`SELECT `+roomCols+` FROM chat_room WHERE roomid = ?`), roomid)
	return a.scanRoom(row)
}

func (a *sqlAdapter) GetRoomByID(id int64) (*t.Room, error) {
	row := a.db.QueryRow(a.rebind(`SELECT `+roomCols+` FROM chat_room WHERE id = ?`), id)
	return a.scanRoom(row)
}

func (a *sqlAdapter) CreateRoom(roomid string, adminOnlySend, adminOnlyView bool) (*t.Room, error) {
	if _, err := a.GetRoomByRoomID(roomid); err == nil {
		return nil, ErrRoomIDTaken
	} else if err != ErrRoomNotFound {
		return nil, err
	}
	now := time.Now().UTC()
	if a.returningID {
		var id int64
		row := a.db.QueryRow(a.rebind(`INSERT INTO chat_room
			(roomid, admin_only_send, admin_only_view, created_at)
			VALUES (?, ?, ?, ?) RETURNING id`), roomid, adminOnlySend, adminOnlyView, now)
		if err := row.Scan(&id); err != nil {
			return nil, err
		}
		return &t.Room{ID: id, RoomID: roomid, AdminOnlySend: adminOnlySend, AdminOnlyView: adminOnlyView, CreatedAt: now}, nil
	}
	res, err := a.db.Exec(a.rebind(`INSERT INTO chat_room
		(roomid, admin_only_send, admin_only_view, created_at)
		VALUES (?, ?, ?, ?)`), roomid, adminOnlySend, adminOnlyView, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &t.Room{ID: id, RoomID: roomid, AdminOnlySend: adminOnlySend, AdminOnlyView: adminOnlyView, CreatedAt: now}, nil
}

func (a *sqlAdapter) DeleteRoom(roomid string) error {
	_, err := a.db.Exec(a.rebind(`DELETE FROM chat_room WHERE roomid = ?`), roomid)
	return err
}

func (a *sqlAdapter) ListRooms() ([]*t.Room, error) {
	rows, err := a.db.Query(`SELECT ` + roomCols + ` FROM chat_room ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*t.Room
	for rows.Next() {
		var r t.Room
		if err := rows.Scan(&r.ID, &r.RoomID, &r.AdminOnlySend, &r.AdminOnlyView, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// --- Messages ---

// messageSelect pulls the shared + variant columns plus a join against
// chat_member/chat_room so every hydrated Message carries a full sender
// and room snapshot (spec.md §4.4's "re-hydrate sender and room by their
// ids from the store" is the chat/store engine's job; this adapter method
// just makes that hydration a single query instead of N+1 round trips).
const messageSelect = `
	SELECT msg.id, msg.timestamp, msg.sender_id, msg.room_id, msg.msg_type,
		msg.msg_text, msg.referencing_id, msg.emoji,
		mem.id, mem.userid, mem.display_name, mem.is_owner, mem.is_admin, mem.created_at, mem.updated_at,
		rm.id, rm.roomid, rm.admin_only_send, rm.admin_only_view, rm.created_at
	FROM chat_message msg
	JOIN chat_member mem ON mem.id = msg.sender_id
	JOIN chat_room rm ON rm.id = msg.room_id
`

func scanMessageRow(scan func(...interface{}) error) (*t.Message, error) {
	var m t.Message
	var emoji sql.NullString
	var refID sql.NullInt64
	err := scan(&m.ID, &m.Timestamp, &m.SenderID, &m.RoomID, &m.Type,
		&m.Text, &refID, &emoji,
		&m.Sender.ID, &m.Sender.Userid, &m.Sender.DisplayName, &m.Sender.IsOwner, &m.Sender.IsAdmin, &m.Sender.CreatedAt, &m.Sender.UpdatedAt,
		&m.Room.ID, &m.Room.RoomID, &m.Room.AdminOnlySend, &m.Room.AdminOnlyView, &m.Room.CreatedAt)
	if err != nil {
		return nil, err
	}
	if refID.Valid {
		m.References = refID.Int64
	}
	if emoji.Valid {
		m.Emoji = emoji.String
	}
	return &m, nil
}

func (a *sqlAdapter) GetMessageByID(id int64) (*t.Message, error) {
	row := a.db.QueryRow(a.rebind(messageSelect+` WHERE msg.id = ?`), id)
	m, err := scanMessageRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	return m, err
}

func (a *sqlAdapter) GetMessagesSince(afterID int64) ([]*t.Message, error) {
	rows, err := a.db.Query(a.rebind(messageSelect+` WHERE msg.id > ? ORDER BY msg.id ASC`), afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*t.Message
	for rows.Next() {
		m, err := scanMessageRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (a *sqlAdapter) GetReplies(parentID int64) ([]*t.Message, error) {
	rows, err := a.db.Query(a.rebind(messageSelect+` WHERE msg.msg_type = ? AND msg.referencing_id = ? ORDER BY msg.id ASC`),
		string(t.MsgReply), parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*t.Message
	for rows.Next() {
		m, err := scanMessageRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (a *sqlAdapter) InsertMessage(m *t.Message) (*t.Message, error) {
	now := time.Now().UTC()
	var refID interface{}
	if m.References != 0 {
		refID = m.References
	}
	var emoji interface{}
	if m.Emoji != "" {
		emoji = m.Emoji
	}

	if a.returningID {
		var id int64
		row := a.db.QueryRow(a.rebind(`INSERT INTO chat_message
			(timestamp, sender_id, room_id, msg_type, msg_text, referencing_id, emoji)
			VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			now, m.SenderID, m.RoomID, string(m.Type), m.Text, refID, emoji)
		if err := row.Scan(&id); err != nil {
			return nil, err
		}
		return a.GetMessageByID(id)
	}
	res, err := a.db.Exec(a.rebind(`INSERT INTO chat_message
		(timestamp, sender_id, room_id, msg_type, msg_text, referencing_id, emoji)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		now, m.SenderID, m.RoomID, string(m.Type), m.Text, refID, emoji)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return a.GetMessageByID(id)
}
