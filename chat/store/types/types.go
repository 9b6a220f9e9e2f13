// Package types defines the Chat Store's persisted shapes (spec.md §3, C4):
// members, rooms, and the typed message algebra. Struct-per-row with
// explicit ID and timestamp bookkeeping, the same shape as auth/store/types
// and the teacher's server/store/types package.
package types

import "time"

// Member is a user's representation within this chat server. Exactly one
// Member has IsOwner true (the first joiner); IsAdmin is implied by
// IsOwner but tracked independently so promote/demote can flip it without
// touching ownership.
type Member struct {
	ID          int64     `db:"id" json:"id"`
	Userid      string    `db:"userid" json:"userid"`
	DisplayName string    `db:"display_name" json:"display_name"`
	IsOwner     bool      `db:"is_owner" json:"is_owner"`
	IsAdmin     bool      `db:"is_admin" json:"is_admin"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Room is a message container, optionally admin-gated for send and/or
// view (spec.md §3).
type Room struct {
	ID            int64     `db:"id" json:"id"`
	RoomID        string    `db:"roomid" json:"roomid"`
	AdminOnlySend bool      `db:"admin_only_send" json:"admin_only_send"`
	AdminOnlyView bool      `db:"admin_only_view" json:"admin_only_view"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// MsgType discriminates the message payload sum type (spec.md §9: "storage
// uses a discriminator column plus shared and variant-specific columns").
type MsgType string

const (
	MsgText       MsgType = "text"
	MsgAttachment MsgType = "attachment"
	MsgReply      MsgType = "reply"
	MsgEdit       MsgType = "edit"
	MsgReaction   MsgType = "reaction"
	MsgRedaction  MsgType = "redaction"
)

// Message is one row of the chat log. The shared columns (ID, Timestamp,
// Sender, Room, Type) apply to every variant; the variant-specific columns
// are populated according to Type and are the disciplined "match on the
// discriminator" the payload algebra requires — callers must never treat
// this struct as an inheritance hierarchy, only as a tagged union keyed by
// Type.
//
//   - MsgText: Text holds the body.
//   - MsgAttachment: reserved, no fields defined by this spec.
//   - MsgReply: References the parent message id; Text holds the body.
//   - MsgEdit: References the message id being edited; Text holds the new
//     body. Valid only when Sender equals the referenced message's sender.
//   - MsgReaction: References the message id; Emoji holds the reaction.
//   - MsgRedaction: References the message id. Valid only when Sender
//     equals the referenced message's sender and Sender is an admin.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	Sender    Member    `db:"-" json:"sender"`
	SenderID  int64     `db:"sender_id" json:"-"`
	Room      Room      `db:"-" json:"room"`
	RoomID    int64     `db:"room_id" json:"-"`
	Type      MsgType   `db:"msg_type" json:"type"`

	Text        string `db:"msg_text" json:"text,omitempty"`
	References  int64  `db:"referencing_id" json:"references,omitempty"`
	Emoji       string `db:"emoji" json:"emoji,omitempty"`
}

// ReplyChain is a derived (never stored) tree rooted at a message, capped
// at depth 8 (spec.md §3). Leaves with no direct replies have Replies nil.
type ReplyChain struct {
	Message Message       `json:"message"`
	Replies []*ReplyChain `json:"replies,omitempty"`
}
