// Package adapter contains the interface to be implemented by the Chat
// Store's database backend, and a registry for pluggable implementations
// (spec.md §4.4, C4), mirroring auth/store/adapter's shape.
package adapter

import (
	"errors"

	t "github.com/joshuafhiggins/realm-chat/chat/store/types"
)

// Adapter is the interface a database backend must implement for the Chat
// Store. Every method is atomic at the row level and trusts its caller to
// have already performed capability validation and role checks (chat/store
// does that); the adapter itself only enforces uniqueness and foreign-key
// style integrity.
type Adapter interface {
	Open(dsn string) error
	Close() error
	IsOpen() bool
	CreateSchema() error
	// ResetSchema drops and recreates every table, discarding all data.
	// Destructive; intended for chatctl's -reset and test setup.
	ResetSchema() error
	GetName() string

	// Members
	CreateMember(userid, displayName string, isOwner, isAdmin bool) (*t.Member, error)
	GetMemberByUserid(userid string) (*t.Member, error)
	GetMemberByID(id int64) (*t.Member, error)
	SetMemberRole(userid string, isAdmin bool) error
	DeleteMember(userid string) error
	MemberCount() (int, error)
	Ban(userid string) error
	Pardon(userid string) error
	IsBanned(userid string) (bool, error)

	// Rooms
	CreateRoom(roomid string, adminOnlySend, adminOnlyView bool) (*t.Room, error)
	GetRoomByRoomID(roomid string) (*t.Room, error)
	GetRoomByID(id int64) (*t.Room, error)
	DeleteRoom(roomid string) error
	ListRooms() ([]*t.Room, error)

	// Messages
	InsertMessage(m *t.Message) (*t.Message, error)
	GetMessageByID(id int64) (*t.Message, error)
	GetMessagesSince(afterID int64) ([]*t.Message, error)
	GetReplies(parentID int64) ([]*t.Message, error)
}

// Sentinel errors returned by adapter implementations; chat/store
// translates these into rpcerr.Code values.
var (
	ErrNotFound        = errors.New("adapter: not found")
	ErrAlreadyJoined   = errors.New("adapter: already joined")
	ErrRoomIDTaken     = errors.New("adapter: roomid taken")
	ErrMessageNotFound = errors.New("adapter: message not found")
	ErrRoomNotFound    = errors.New("adapter: room not found")
)

var registry = make(map[string]Adapter)

// Register makes an adapter implementation available under name, intended
// to be called from an init() function via a blank import, matching
// auth/store/adapter's registration convention.
func Register(name string, a Adapter) {
	if _, dup := registry[name]; dup {
		panic("adapter: Register called twice for " + name)
	}
	registry[name] = a
}

// Get returns the adapter registered under name, or nil if none.
func Get(name string) Adapter {
	return registry[name]
}
