package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/joshuafhiggins/realm-chat/chat/events"
	"github.com/joshuafhiggins/realm-chat/chat/store"
	"github.com/joshuafhiggins/realm-chat/chat/store/adapter"
	t_ "github.com/joshuafhiggins/realm-chat/chat/store/types"
	"github.com/joshuafhiggins/realm-chat/pkg/capability"
	"github.com/joshuafhiggins/realm-chat/pkg/rpcerr"
)

// fakeValidator seeds the capability cache with st -> userid pairs so
// IsValid hits the cache path and never dials out.
func fakeValidator(t *testing.T) (*capability.Validator, func(userid string) string) {
	t.Helper()
	cache := capability.NewCache(100, time.Hour, time.Hour)
	t.Cleanup(cache.Stop)
	v := &capability.Validator{
		Self:  capability.Identity{ServerID: "realm-1", Domain: "chat.example", Port: 5051},
		Cache: cache,
	}
	tokenFor := func(userid string) string {
		st := "st-" + userid
		cache.Put(st, userid)
		return st
	}
	return v, tokenFor
}

func newEngine(t *testing.T) (*store.Engine, func(userid string) string) {
	t.Helper()
	a := adapter.Get("sqlite")
	if a == nil {
		t.Fatal("sqlite adapter not registered")
	}
	dsn := filepath.Join(t.TempDir(), "chat.db")
	if err := a.Open(dsn); err != nil {
		t.Fatalf("opening sqlite adapter: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	if err := a.CreateSchema(); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	v, tokenFor := fakeValidator(t)
	log := events.NewLog(nil)
	return store.NewEngine(a, v, log, "realm-1"), tokenFor
}

// S3 — the first joiner becomes owner+admin; later joiners are plain
// members (spec.md §8).
func TestJoinServerFirstJoinerIsOwner(t *testing.T) {
	e, tok := newEngine(t)

	alice := "@alice:chat.example"
	m, err := e.JoinServer(tok(alice), alice)
	if err != nil {
		t.Fatalf("JoinServer(alice): %v", err)
	}
	if !m.IsOwner || !m.IsAdmin {
		t.Fatalf("expected first joiner to be owner+admin, got %+v", m)
	}

	bob := "@bob:chat.example"
	m2, err := e.JoinServer(tok(bob), bob)
	if err != nil {
		t.Fatalf("JoinServer(bob): %v", err)
	}
	if m2.IsOwner || m2.IsAdmin {
		t.Fatalf("expected second joiner to be a plain member, got %+v", m2)
	}
}

func TestJoinServerRejectsBannedUser(t *testing.T) {
	e, tok := newEngine(t)
	owner := "@owner:chat.example"
	if _, err := e.JoinServer(tok(owner), owner); err != nil {
		t.Fatalf("owner join: %v", err)
	}

	mallory := "@mallory:chat.example"
	if _, err := e.JoinServer(tok(mallory), mallory); err != nil {
		t.Fatalf("mallory join: %v", err)
	}
	if err := e.BanUser(tok(owner), owner, mallory); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := e.JoinServer(tok(mallory), mallory); rpcerr.CodeOf(err) != rpcerr.Unauthorized {
		t.Fatalf("expected banned rejoin to be Unauthorized, got %v", err)
	}
}

// S4 — admin-only room gating (spec.md §8).
func TestSendMessageAdminOnlyRoomGating(t *testing.T) {
	e, tok := newEngine(t)
	owner := "@owner:chat.example"
	if _, err := e.JoinServer(tok(owner), owner); err != nil {
		t.Fatalf("owner join: %v", err)
	}
	member := "@carl:chat.example"
	if _, err := e.JoinServer(tok(member), member); err != nil {
		t.Fatalf("member join: %v", err)
	}

	room, err := e.CreateRoom(tok(owner), owner, "announcements", true, false)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	_, err = e.SendMessage(tok(member), store.InputMessage{
		SenderUserid: member, RoomID: room.RoomID, Type: t_.MsgText, Text: "hi",
	})
	if rpcerr.CodeOf(err) != rpcerr.Unauthorized {
		t.Fatalf("expected non-admin send to admin_only_send room to be Unauthorized, got %v", err)
	}

	msg, err := e.SendMessage(tok(owner), store.InputMessage{
		SenderUserid: owner, RoomID: room.RoomID, Type: t_.MsgText, Text: "welcome",
	})
	if err != nil {
		t.Fatalf("expected admin send to succeed: %v", err)
	}
	if msg.Text != "welcome" {
		t.Fatalf("got %q, want %q", msg.Text, "welcome")
	}
}

// S5 — edit ownership: only the original sender may edit their message
// (spec.md §8).
func TestSendMessageEditRequiresOwnership(t *testing.T) {
	e, tok := newEngine(t)
	owner := "@owner:chat.example"
	if _, err := e.JoinServer(tok(owner), owner); err != nil {
		t.Fatalf("owner join: %v", err)
	}
	other := "@dana:chat.example"
	if _, err := e.JoinServer(tok(other), other); err != nil {
		t.Fatalf("other join: %v", err)
	}
	room, err := e.CreateRoom(tok(owner), owner, "general", false, false)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	orig, err := e.SendMessage(tok(owner), store.InputMessage{
		SenderUserid: owner, RoomID: room.RoomID, Type: t_.MsgText, Text: "v1",
	})
	if err != nil {
		t.Fatalf("send original: %v", err)
	}

	_, err = e.SendMessage(tok(other), store.InputMessage{
		SenderUserid: other, RoomID: room.RoomID, Type: t_.MsgEdit, Text: "v2", References: orig.ID,
	})
	if rpcerr.CodeOf(err) != rpcerr.Unauthorized {
		t.Fatalf("expected edit by non-owner to be Unauthorized, got %v", err)
	}

	edited, err := e.SendMessage(tok(owner), store.InputMessage{
		SenderUserid: owner, RoomID: room.RoomID, Type: t_.MsgEdit, Text: "v2", References: orig.ID,
	})
	if err != nil {
		t.Fatalf("expected edit by original sender to succeed: %v", err)
	}
	if edited.Text != "v2" {
		t.Fatalf("got %q, want %q", edited.Text, "v2")
	}
}

// Redaction authority (spec.md §8 property 3): redacting requires both
// ownership of the referenced message AND admin status.
func TestSendMessageRedactionRequiresOwnerAndAdmin(t *testing.T) {
	e, tok := newEngine(t)
	owner := "@owner:chat.example"
	if _, err := e.JoinServer(tok(owner), owner); err != nil {
		t.Fatalf("owner join: %v", err)
	}
	member := "@ed:chat.example"
	if _, err := e.JoinServer(tok(member), member); err != nil {
		t.Fatalf("member join: %v", err)
	}
	room, err := e.CreateRoom(tok(owner), owner, "general", false, false)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	msg, err := e.SendMessage(tok(member), store.InputMessage{
		SenderUserid: member, RoomID: room.RoomID, Type: t_.MsgText, Text: "oops",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	// member owns the message but isn't admin: rejected.
	_, err = e.SendMessage(tok(member), store.InputMessage{
		SenderUserid: member, RoomID: room.RoomID, Type: t_.MsgRedaction, References: msg.ID,
	})
	if rpcerr.CodeOf(err) != rpcerr.Unauthorized {
		t.Fatalf("expected non-admin redaction to be Unauthorized, got %v", err)
	}

	// owner is admin but doesn't own the message: rejected.
	_, err = e.SendMessage(tok(owner), store.InputMessage{
		SenderUserid: owner, RoomID: room.RoomID, Type: t_.MsgRedaction, References: msg.ID,
	})
	if rpcerr.CodeOf(err) != rpcerr.Unauthorized {
		t.Fatalf("expected non-owning admin redaction to be Unauthorized, got %v", err)
	}

	if err := e.PromoteUser(tok(owner), owner, member); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if _, err := e.SendMessage(tok(member), store.InputMessage{
		SenderUserid: member, RoomID: room.RoomID, Type: t_.MsgRedaction, References: msg.ID,
	}); err != nil {
		t.Fatalf("expected owning admin redaction to succeed: %v", err)
	}
}

// S6 — event log density: a sequence of operations must produce exactly
// the matching sequence of event kinds, in order (spec.md §8).
func TestEventLogOrderingDensity(t *testing.T) {
	e, tok := newEngine(t)
	owner := "@owner:chat.example"
	if _, err := e.JoinServer(tok(owner), owner); err != nil {
		t.Fatalf("join: %v", err)
	}

	room, err := e.CreateRoom(tok(owner), owner, "general", false, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := e.SendMessage(tok(owner), store.InputMessage{
			SenderUserid: owner, RoomID: room.RoomID, Type: t_.MsgText, Text: "hi",
		}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := e.DeleteRoom(tok(owner), owner, room.RoomID); err != nil {
		t.Fatalf("delete room: %v", err)
	}

	all := e.Events.PollEventsSince(0)
	want := []events.Kind{
		events.KindUserJoined,
		events.KindNewRoom,
		events.KindNewMessage,
		events.KindNewMessage,
		events.KindNewMessage,
		events.KindDeleteRoom,
	}
	if len(all) != len(want) {
		t.Fatalf("got %d events, want %d", len(all), len(want))
	}
	for i, ev := range all {
		if ev.Kind != want[i] {
			t.Fatalf("event[%d] kind = %s, want %s", i, ev.Kind, want[i])
		}
		if ev.Index != uint32(i+1) {
			t.Fatalf("event[%d] index = %d, want %d (density property)", i, ev.Index, i+1)
		}
	}
}

// Owner uniqueness (spec.md §8 property 5): the owner can never be
// demoted, even by itself.
func TestOwnerCannotBeDemoted(t *testing.T) {
	e, tok := newEngine(t)
	owner := "@owner:chat.example"
	if _, err := e.JoinServer(tok(owner), owner); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := e.DemoteUser(tok(owner), owner, owner); rpcerr.CodeOf(err) != rpcerr.Unauthorized {
		t.Fatalf("expected owner self-demote to be Unauthorized, got %v", err)
	}
}

// Admin-only-view filtering (spec.md §8 property 6): a non-admin never
// sees rooms or messages inside an admin_only_view room.
func TestAdminOnlyViewFiltering(t *testing.T) {
	e, tok := newEngine(t)
	owner := "@owner:chat.example"
	if _, err := e.JoinServer(tok(owner), owner); err != nil {
		t.Fatalf("join owner: %v", err)
	}
	member := "@fay:chat.example"
	if _, err := e.JoinServer(tok(member), member); err != nil {
		t.Fatalf("join member: %v", err)
	}

	room, err := e.CreateRoom(tok(owner), owner, "secret", false, true)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := e.SendMessage(tok(owner), store.InputMessage{
		SenderUserid: owner, RoomID: room.RoomID, Type: t_.MsgText, Text: "classified",
	}); err != nil {
		t.Fatalf("send: %v", err)
	}

	rooms, err := e.GetRooms(tok(member), member)
	if err != nil {
		t.Fatalf("GetRooms(member): %v", err)
	}
	for _, r := range rooms {
		if r.RoomID == room.RoomID {
			t.Fatal("expected admin_only_view room to be hidden from non-admin")
		}
	}

	adminRooms, err := e.GetRooms(tok(owner), owner)
	if err != nil {
		t.Fatalf("GetRooms(owner): %v", err)
	}
	found := false
	for _, r := range adminRooms {
		if r.RoomID == room.RoomID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected admin to see admin_only_view room")
	}

	msgs, err := e.GetMessagesSince(tok(member), member, 0)
	if err != nil {
		t.Fatalf("GetMessagesSince(member): %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected non-admin to see zero messages in hidden room, got %d", len(msgs))
	}
}

// Reply-chain depth bound (spec.md §8 property 8): get_reply_chain never
// recurses deeper than min(requested depth, 8), and rejects depth > 8.
func TestGetReplyChainDepthBound(t *testing.T) {
	e, tok := newEngine(t)
	owner := "@owner:chat.example"
	if _, err := e.JoinServer(tok(owner), owner); err != nil {
		t.Fatalf("join: %v", err)
	}
	room, err := e.CreateRoom(tok(owner), owner, "general", false, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	head, err := e.SendMessage(tok(owner), store.InputMessage{
		SenderUserid: owner, RoomID: room.RoomID, Type: t_.MsgText, Text: "root",
	})
	if err != nil {
		t.Fatalf("send root: %v", err)
	}

	const chainLen = 10
	parent := head
	for i := 0; i < chainLen; i++ {
		reply, err := e.SendMessage(tok(owner), store.InputMessage{
			SenderUserid: owner, RoomID: room.RoomID, Type: t_.MsgReply, Text: "reply", References: parent.ID,
		})
		if err != nil {
			t.Fatalf("send reply %d: %v", i, err)
		}
		parent = reply
	}

	if _, err := e.GetReplyChain(tok(owner), owner, head.ID, 9); rpcerr.CodeOf(err) != rpcerr.DepthTooLarge {
		t.Fatalf("expected depth=9 to be rejected as DepthTooLarge, got %v", err)
	}

	chain, err := e.GetReplyChain(tok(owner), owner, head.ID, 8)
	if err != nil {
		t.Fatalf("GetReplyChain(depth=8): %v", err)
	}
	depth := chainDepth(chain)
	if depth > 8 {
		t.Fatalf("chain recursed to depth %d, want <= 8", depth)
	}
}

func chainDepth(c *t_.ReplyChain) int {
	max := 0
	for _, child := range c.Replies {
		if d := chainDepth(child); d > max {
			max = d
		}
	}
	if len(c.Replies) == 0 {
		return 0
	}
	return max + 1
}
