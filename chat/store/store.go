// Package store implements the Chat Store & Message Algebra engine
// (spec.md §4.4, C4): admission, room lifecycle, role changes, the typed
// message send pipeline, and the read paths, all sitting on top of the
// chat/store/adapter database layer and pkg/capability's validator.
package store

import (
	"github.com/joshuafhiggins/realm-chat/chat/events"
	"github.com/joshuafhiggins/realm-chat/chat/store/adapter"
	t "github.com/joshuafhiggins/realm-chat/chat/store/types"
	"github.com/joshuafhiggins/realm-chat/pkg/capability"
	"github.com/joshuafhiggins/realm-chat/pkg/rpcerr"
)

const maxReplyDepth = 8

// InputMessage is the client-submitted message shape before server-side
// hydration; SenderUserid and RoomID are untrusted claims that SendMessage
// re-derives from the store (spec.md §4.4 step 2: "client-supplied copies
// are untrusted").
type InputMessage struct {
	SenderUserid string
	RoomID       string
	Type         t.MsgType
	Text         string
	References   int64
	Emoji        string
}

// Engine ties the Chat Store adapter to the Capability Validator and the
// Event Log.
type Engine struct {
	Store     adapter.Adapter
	Validator *capability.Validator
	Events    *events.Log
	ServerID  string
}

// NewEngine builds a chat store Engine.
func NewEngine(store adapter.Adapter, validator *capability.Validator, log *events.Log, serverID string) *Engine {
	return &Engine{Store: store, Validator: validator, Events: log, ServerID: serverID}
}

func mapStoreErr(err error) error {
	switch err {
	case nil:
		return nil
	case adapter.ErrNotFound:
		return rpcerr.New(rpcerr.UserNotFound, err)
	case adapter.ErrAlreadyJoined:
		return rpcerr.New(rpcerr.AlreadyJoinedServer, err)
	case adapter.ErrRoomIDTaken:
		return rpcerr.New(rpcerr.ErrGeneric, err)
	case adapter.ErrMessageNotFound:
		return rpcerr.New(rpcerr.MessageNotFound, err)
	case adapter.ErrRoomNotFound:
		return rpcerr.New(rpcerr.RoomNotFound, err)
	default:
		return rpcerr.New(rpcerr.MalformedDBResponse, err)
	}
}

// requireValid validates st against claimedUserid (spec.md §4.3's security
// invariant: the claimed userid always comes from the RPC argument, never
// from the cache alone).
func (e *Engine) requireValid(st, claimedUserid string) error {
	if !e.Validator.IsValid(claimedUserid, st) {
		return rpcerr.New(rpcerr.Unauthorized, nil)
	}
	return nil
}

func (e *Engine) requireMember(userid string) (*t.Member, error) {
	m, err := e.Store.GetMemberByUserid(userid)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return m, nil
}

func (e *Engine) requireAdmin(userid string) (*t.Member, error) {
	m, err := e.requireMember(userid)
	if err != nil {
		return nil, err
	}
	if !m.IsAdmin {
		return nil, rpcerr.New(rpcerr.Unauthorized, nil)
	}
	return m, nil
}

func (e *Engine) requireOwner(userid string) (*t.Member, error) {
	m, err := e.requireMember(userid)
	if err != nil {
		return nil, err
	}
	if !m.IsOwner {
		return nil, rpcerr.New(rpcerr.Unauthorized, nil)
	}
	return m, nil
}

// JoinServer admits userid as a Member, granting owner+admin iff the
// server currently has no members (spec.md §4.4).
func (e *Engine) JoinServer(st, userid string) (*t.Member, error) {
	if err := e.requireValid(st, userid); err != nil {
		return nil, err
	}
	banned, err := e.Store.IsBanned(userid)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if banned {
		return nil, rpcerr.New(rpcerr.Unauthorized, nil)
	}

	count, err := e.Store.MemberCount()
	if err != nil {
		return nil, mapStoreErr(err)
	}
	isOwner := count == 0

	m, err := e.Store.CreateMember(userid, userid, isOwner, isOwner)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	e.Events.Append(events.Event{Kind: events.KindUserJoined, Member: m})
	return m, nil
}

// LeaveServer removes userid's membership.
func (e *Engine) LeaveServer(st, userid string) error {
	if err := e.requireValid(st, userid); err != nil {
		return err
	}
	m, err := e.requireMember(userid)
	if err != nil {
		return err
	}
	if err := e.Store.DeleteMember(userid); err != nil {
		return mapStoreErr(err)
	}
	e.Events.Append(events.Event{Kind: events.KindUserLeft, Member: m})
	return nil
}

// KickUser removes target's membership; caller must be admin.
func (e *Engine) KickUser(st, callerUserid, targetUserid string) error {
	if err := e.requireValid(st, callerUserid); err != nil {
		return err
	}
	if _, err := e.requireAdmin(callerUserid); err != nil {
		return err
	}
	m, err := e.requireMember(targetUserid)
	if err != nil {
		return err
	}
	if err := e.Store.DeleteMember(targetUserid); err != nil {
		return mapStoreErr(err)
	}
	e.Events.Append(events.Event{Kind: events.KindKicked, Userid: targetUserid, Member: m})
	return nil
}

// BanUser kicks target and adds it to the Banned set; caller must be
// admin (spec.md §4.4: "join then re-checks this set").
func (e *Engine) BanUser(st, callerUserid, targetUserid string) error {
	if err := e.requireValid(st, callerUserid); err != nil {
		return err
	}
	if _, err := e.requireAdmin(callerUserid); err != nil {
		return err
	}
	m, err := e.Store.GetMemberByUserid(targetUserid)
	if err != nil && err != adapter.ErrNotFound {
		return mapStoreErr(err)
	}
	if m != nil {
		if err := e.Store.DeleteMember(targetUserid); err != nil {
			return mapStoreErr(err)
		}
	}
	if err := e.Store.Ban(targetUserid); err != nil {
		return mapStoreErr(err)
	}
	e.Events.Append(events.Event{Kind: events.KindBanned, Userid: targetUserid})
	return nil
}

// PardonUser removes target from the Banned set; caller must be admin.
func (e *Engine) PardonUser(st, callerUserid, targetUserid string) error {
	if err := e.requireValid(st, callerUserid); err != nil {
		return err
	}
	if _, err := e.requireAdmin(callerUserid); err != nil {
		return err
	}
	if err := e.Store.Pardon(targetUserid); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// PromoteUser/DemoteUser toggle is_admin; caller must be the owner, and
// the owner itself can never be demoted by another caller (spec.md §4.4).
func (e *Engine) PromoteUser(st, callerUserid, targetUserid string) error {
	return e.setRole(st, callerUserid, targetUserid, true)
}

func (e *Engine) DemoteUser(st, callerUserid, targetUserid string) error {
	return e.setRole(st, callerUserid, targetUserid, false)
}

func (e *Engine) setRole(st, callerUserid, targetUserid string, isAdmin bool) error {
	if err := e.requireValid(st, callerUserid); err != nil {
		return err
	}
	if _, err := e.requireOwner(callerUserid); err != nil {
		return err
	}
	target, err := e.requireMember(targetUserid)
	if err != nil {
		return err
	}
	if target.IsOwner {
		return rpcerr.New(rpcerr.Unauthorized, nil)
	}
	if err := e.Store.SetMemberRole(targetUserid, isAdmin); err != nil {
		return mapStoreErr(err)
	}
	kind := events.KindDemoted
	if isAdmin {
		kind = events.KindPromoted
	}
	e.Events.Append(events.Event{Kind: kind, Userid: targetUserid})
	return nil
}

// CreateRoom creates a room; admin only, duplicate roomid rejected.
func (e *Engine) CreateRoom(st, userid, roomid string, adminOnlySend, adminOnlyView bool) (*t.Room, error) {
	if err := e.requireValid(st, userid); err != nil {
		return nil, err
	}
	if _, err := e.requireAdmin(userid); err != nil {
		return nil, err
	}
	room, err := e.Store.CreateRoom(roomid, adminOnlySend, adminOnlyView)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	e.Events.Append(events.Event{Kind: events.KindNewRoom, Room: room})
	return room, nil
}

// DeleteRoom deletes a room; admin only. Messages referring to it remain
// (spec.md §3's lifecycle note).
func (e *Engine) DeleteRoom(st, userid, roomid string) error {
	if err := e.requireValid(st, userid); err != nil {
		return err
	}
	if _, err := e.requireAdmin(userid); err != nil {
		return err
	}
	if _, err := e.Store.GetRoomByRoomID(roomid); err != nil {
		return mapStoreErr(err)
	}
	if err := e.Store.DeleteRoom(roomid); err != nil {
		return mapStoreErr(err)
	}
	e.Events.Append(events.Event{Kind: events.KindDeleteRoom, RoomID: roomid})
	return nil
}

// SendMessage runs the ordered, abort-on-first-failure pipeline of
// spec.md §4.4:
//  1. Validate capability against the claimed sender.
//  2. Re-hydrate sender and room from the store.
//  3. Reject if room is admin_only_send and sender is not admin.
//  4. Edit: require referenced sender == this sender.
//  5. Redaction: require referenced sender == this sender and sender is
//     admin.
//  6. Insert with server-assigned id/timestamp.
//  7. Append NewMessage to the event log.
func (e *Engine) SendMessage(st string, in InputMessage) (*t.Message, error) {
	if err := e.requireValid(st, in.SenderUserid); err != nil {
		return nil, err
	}

	sender, err := e.Store.GetMemberByUserid(in.SenderUserid)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	room, err := e.Store.GetRoomByRoomID(in.RoomID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if room.AdminOnlySend && !sender.IsAdmin {
		return nil, rpcerr.New(rpcerr.Unauthorized, nil)
	}

	var referenced *t.Message
	if in.Type == t.MsgEdit || in.Type == t.MsgRedaction || in.Type == t.MsgReply || in.Type == t.MsgReaction {
		referenced, err = e.Store.GetMessageByID(in.References)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if !e.visible(&referenced.Room, in.SenderUserid) {
			return nil, rpcerr.New(rpcerr.MessageNotFound, nil)
		}
	}

	switch in.Type {
	case t.MsgEdit:
		if referenced.SenderID != sender.ID {
			return nil, rpcerr.New(rpcerr.Unauthorized, nil)
		}
	case t.MsgRedaction:
		if referenced.SenderID != sender.ID || !sender.IsAdmin {
			return nil, rpcerr.New(rpcerr.Unauthorized, nil)
		}
	}

	m := &t.Message{
		SenderID:   sender.ID,
		RoomID:     room.ID,
		Type:       in.Type,
		Text:       in.Text,
		References: in.References,
		Emoji:      in.Emoji,
	}
	inserted, err := e.Store.InsertMessage(m)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	e.Events.Append(events.Event{Kind: events.KindNewMessage, Message: inserted})
	return inserted, nil
}

// visible reports whether a room with AdminOnlyView should be visible
// to userid (spec.md §4.4's read-visibility rule).
func (e *Engine) visible(room *t.Room, userid string) bool {
	if !room.AdminOnlyView {
		return true
	}
	m, err := e.Store.GetMemberByUserid(userid)
	return err == nil && m.IsAdmin
}

// GetMessage fetches a single message, honoring its room's view policy.
func (e *Engine) GetMessage(st, userid string, id int64) (*t.Message, error) {
	if err := e.requireValid(st, userid); err != nil {
		return nil, err
	}
	m, err := e.Store.GetMessageByID(id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !e.visible(&m.Room, userid) {
		return nil, rpcerr.New(rpcerr.MessageNotFound, nil)
	}
	return m, nil
}

// GetMessagesSince returns every message with id > afterID visible to
// userid (spec.md §4.4: "admin_only_view=true filtered out unless caller
// is admin").
func (e *Engine) GetMessagesSince(st, userid string, afterID int64) ([]*t.Message, error) {
	if err := e.requireValid(st, userid); err != nil {
		return nil, err
	}
	all, err := e.Store.GetMessagesSince(afterID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]*t.Message, 0, len(all))
	for _, m := range all {
		if e.visible(&m.Room, userid) {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetRooms lists rooms visible to userid.
func (e *Engine) GetRooms(st, userid string) ([]*t.Room, error) {
	if err := e.requireValid(st, userid); err != nil {
		return nil, err
	}
	all, err := e.Store.ListRooms()
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]*t.Room, 0, len(all))
	for _, r := range all {
		if e.visible(r, userid) {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetRoom fetches a single room, honoring its own view policy.
func (e *Engine) GetRoom(st, userid, roomid string) (*t.Room, error) {
	if err := e.requireValid(st, userid); err != nil {
		return nil, err
	}
	r, err := e.Store.GetRoomByRoomID(roomid)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !e.visible(r, userid) {
		return nil, rpcerr.New(rpcerr.RoomNotFound, nil)
	}
	return r, nil
}

// GetReplyChain recursively descends from head, capped at depth 8
// (spec.md §4.4, §8 property 8). Leaves with no direct replies have
// Replies nil.
func (e *Engine) GetReplyChain(st, userid string, head int64, depth int) (*t.ReplyChain, error) {
	if err := e.requireValid(st, userid); err != nil {
		return nil, err
	}
	if depth > maxReplyDepth {
		return nil, rpcerr.New(rpcerr.DepthTooLarge, nil)
	}
	root, err := e.Store.GetMessageByID(head)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !e.visible(&root.Room, userid) {
		return nil, rpcerr.New(rpcerr.MessageNotFound, nil)
	}
	return e.buildChain(root, depth)
}

func (e *Engine) buildChain(node *t.Message, remaining int) (*t.ReplyChain, error) {
	chain := &t.ReplyChain{Message: *node}
	if remaining <= 0 {
		return chain, nil
	}
	replies, err := e.Store.GetReplies(node.ID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	for _, r := range replies {
		child, err := e.buildChain(r, remaining-1)
		if err != nil {
			return nil, err
		}
		chain.Replies = append(chain.Replies, child)
	}
	return chain, nil
}

// BroadcastTyping is a best-effort, unpersisted signal (spec.md §4.4: "no
// correctness property depends on them"). It only validates the capability
// and checks that the room exists; there is no fan-out mechanism because the event
// log and poller model already deliver everything durable.
func (e *Engine) BroadcastTyping(st, userid, roomid string) error {
	if err := e.requireValid(st, userid); err != nil {
		return err
	}
	if _, err := e.Store.GetRoomByRoomID(roomid); err != nil {
		return mapStoreErr(err)
	}
	return nil
}
