// Package types defines the Identity Store's persisted shapes (spec.md §3,
// C1). Struct-per-row with explicit ID and timestamp bookkeeping, the same
// shape as the teacher's server/store/types package.
package types

import "time"

// User is a single account record in the Identity Store.
//
// Username is globally formatted "@local:domain"; Tokens and JoinedServers are
// semantically a set and an ordered, duplicate-free list respectively, even
// though the SQL adapters persist them as delimited strings for compactness
// (spec.md §9's "delimited token sets" note) — callers only ever see the Go
// slice/set view reconstructed by the adapter.
type User struct {
	ID              int64     `db:"id" json:"id"`
	Username        string    `db:"username" json:"username"`
	Email           string    `db:"email" json:"email"`
	PendingNewEmail string    `db:"pending_new_email" json:"pending_new_email,omitempty"`
	Avatar          string    `db:"avatar" json:"avatar"`
	CurrentLoginCode string   `db:"current_login_code" json:"-"`
	Tokens          []string  `db:"-" json:"-"`
	JoinedServers   []string  `db:"-" json:"joined_servers"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// HasToken reports whether t is in the user's active token set.
func (u *User) HasToken(t string) bool {
	for _, tok := range u.Tokens {
		if tok == t {
			return true
		}
	}
	return false
}

// HasJoined reports whether the user has already joined endpoint
// ("domain:port").
func (u *User) HasJoined(endpoint string) bool {
	for _, s := range u.JoinedServers {
		if s == endpoint {
			return true
		}
	}
	return false
}
