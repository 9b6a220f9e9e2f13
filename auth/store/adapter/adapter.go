// Package adapter contains the interface to be implemented by the Identity
// Store's database backend, and a registry for pluggable implementations
// (spec.md §4.1, C1).
//
// Shape and registration convention grounded on the teacher's
// server/store/adapter.Adapter and its tinode-db blank-import registration
// idiom ("_ github.com/tinode/chat/server/db/mysql" then
// store.RegisterAdapter(name, impl)).
package adapter

import (
	"errors"

	t "github.com/joshuafhiggins/realm-chat/auth/store/types"
)

// Adapter is the interface a database backend must implement for the
// Identity Store. Every method is atomic at the row level; composing them
// into flows (create-account, login, ...) is auth/flow's job, not the
// adapter's.
type Adapter interface {
	// Open connects and prepares the adapter for use.
	Open(dsn string) error
	// Close releases the underlying connection.
	Close() error
	// IsOpen reports whether the adapter is ready for use.
	IsOpen() bool
	// CreateSchema creates the backing tables if they do not already
	// exist (idempotent; spec.md §6's logical schema layout).
	CreateSchema() error
	// ResetSchema drops and recreates the backing tables, discarding all
	// data. Destructive; intended for chatctl's -reset and test setup.
	ResetSchema() error
	// GetName returns the adapter's registered name.
	GetName() string

	// CreateUser inserts a new user row. Returns ErrUsernameTaken or
	// ErrEmailTaken on conflict.
	CreateUser(username, email string) (*t.User, error)
	// GetUserByUsername loads a user by exact username match.
	GetUserByUsername(username string) (*t.User, error)
	// GetUserByEmail loads a user by exact email match.
	GetUserByEmail(email string) (*t.User, error)
	// DeleteUser removes the user row entirely.
	DeleteUser(username string) error
	// SetAvatar updates the user's opaque avatar reference.
	SetAvatar(username, avatar string) error

	// SetLoginCode stores a fresh single-use login code, replacing any
	// prior outstanding code (spec.md §3: "at most one outstanding
	// current_login_code per user").
	SetLoginCode(username, code string) error
	// ClearLoginCode clears the outstanding login code, if any.
	ClearLoginCode(username string) error
	// VerifyLoginCode reports whether code matches the stored code.
	VerifyLoginCode(username, code string) (bool, error)

	// AppendToken adds a bearer token to the user's active set.
	AppendToken(username, token string) error
	// RemoveToken removes a bearer token from the user's active set.
	// Returns ErrTokenNotFound if it was not present.
	RemoveToken(username, token string) error

	// SetPendingEmail records the requested new email pending
	// confirmation.
	SetPendingEmail(username, newEmail string) error
	// CommitPendingEmail promotes PendingNewEmail to Email and clears
	// the pending field.
	CommitPendingEmail(username string) error

	// AddJoinedServer appends "domain:port" to the user's joined-server
	// list. Returns ErrAlreadyJoined on duplicate.
	AddJoinedServer(username, endpoint string) error
	// RemoveJoinedServer removes "domain:port" from the user's
	// joined-server list.
	RemoveJoinedServer(username, endpoint string) error
}

// Sentinel errors returned by adapter implementations; auth/flow translates
// these into rpcerr.Code values.
var (
	ErrUsernameTaken = errors.New("adapter: username taken")
	ErrEmailTaken    = errors.New("adapter: email taken")
	ErrNotFound      = errors.New("adapter: not found")
	ErrTokenNotFound = errors.New("adapter: token not found")
	ErrAlreadyJoined = errors.New("adapter: already joined")
	ErrNotJoined     = errors.New("adapter: not joined")
)

// registry holds adapters by name, following the teacher's
// RegisterAuthScheme / RegisterAdapter pattern so a backend can register
// itself from an init() via a blank import.
var registry = make(map[string]Adapter)

// Register makes an adapter implementation available under name. Intended
// to be called from an init() function, e.g.:
//
//	func init() { adapter.Register("mysql", &MySQLAdapter{}) }
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
