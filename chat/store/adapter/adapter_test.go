package adapter_test

import (
	"path/filepath"
	"testing"

	"github.com/joshuafhiggins/realm-chat/chat/store/adapter"
	t_ "github.com/joshuafhiggins/realm-chat/chat/store/types"
)

func newAdapter(t *testing.T) adapter.Adapter {
	t.Helper()
	a := adapter.Get("sqlite")
	if a == nil {
		t.Fatal("sqlite adapter not registered")
	}
	dsn := filepath.Join(t.TempDir(), "chat.db")
	if err := a.Open(dsn); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	if err := a.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	return a
}

func TestCreateMemberRejectsDuplicateUserid(t *testing.T) {
	a := newAdapter(t)
	if _, err := a.CreateMember("@alice:chat.example", "alice", true, true); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := a.CreateMember("@alice:chat.example", "alice", false, false); err != adapter.ErrAlreadyJoined {
		t.Fatalf("got %v, want ErrAlreadyJoined", err)
	}
}

func TestGetMemberByUseridNotFound(t *testing.T) {
	a := newAdapter(t)
	if _, err := a.GetMemberByUserid("@nobody:chat.example"); err != adapter.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSetMemberRoleAndDeleteMember(t *testing.T) {
	a := newAdapter(t)
	m, err := a.CreateMember("@bob:chat.example", "bob", false, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := a.SetMemberRole(m.Userid, true); err != nil {
		t.Fatalf("SetMemberRole: %v", err)
	}
	got, err := a.GetMemberByID(m.ID)
	if err != nil {
		t.Fatalf("GetMemberByID: %v", err)
	}
	if !got.IsAdmin {
		t.Fatal("expected is_admin to be set")
	}

	if err := a.DeleteMember(m.Userid); err != nil {
		t.Fatalf("DeleteMember: %v", err)
	}
	if _, err := a.GetMemberByUserid(m.Userid); err != adapter.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound after delete", err)
	}
}

func TestMemberCount(t *testing.T) {
	a := newAdapter(t)
	n, err := a.MemberCount()
	if err != nil {
		t.Fatalf("MemberCount: %v", err)
	}
	if n != 0 {
		t.Fatalf("got %d, want 0", n)
	}
	if _, err := a.CreateMember("@carl:chat.example", "carl", false, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err = a.MemberCount()
	if err != nil {
		t.Fatalf("MemberCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d, want 1", n)
	}
}

func TestBanIsIdempotentAndPardonReverses(t *testing.T) {
	a := newAdapter(t)
	userid := "@mallory:chat.example"

	if banned, _ := a.IsBanned(userid); banned {
		t.Fatal("expected not banned initially")
	}
	if err := a.Ban(userid); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if err := a.Ban(userid); err != nil {
		t.Fatalf("second Ban (idempotent) should not error: %v", err)
	}
	if banned, _ := a.IsBanned(userid); !banned {
		t.Fatal("expected banned after Ban")
	}
	if err := a.Pardon(userid); err != nil {
		t.Fatalf("Pardon: %v", err)
	}
	if banned, _ := a.IsBanned(userid); banned {
		t.Fatal("expected not banned after Pardon")
	}
}

func TestCreateRoomRejectsDuplicateRoomID(t *testing.T) {
	a := newAdapter(t)
	if _, err := a.CreateRoom("general", false, false); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := a.CreateRoom("general", true, true); err != adapter.ErrRoomIDTaken {
		t.Fatalf("got %v, want ErrRoomIDTaken", err)
	}
}

func TestListRoomsOrdersByCreation(t *testing.T) {
	a := newAdapter(t)
	for _, id := range []string{"first", "second", "third"} {
		if _, err := a.CreateRoom(id, false, false); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	rooms, err := a.ListRooms()
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 3 {
		t.Fatalf("got %d rooms, want 3", len(rooms))
	}
	want := []string{"first", "second", "third"}
	for i, r := range rooms {
		if r.RoomID != want[i] {
			t.Fatalf("rooms[%d].RoomID = %q, want %q", i, r.RoomID, want[i])
		}
	}
}

func TestInsertMessageHydratesSenderAndRoom(t *testing.T) {
	a := newAdapter(t)
	m, err := a.CreateMember("@dana:chat.example", "dana", true, true)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	room, err := a.CreateRoom("general", false, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	msg := &t_.Message{SenderID: m.ID, RoomID: room.ID, Type: t_.MsgText, Text: "hello"}
	inserted, err := a.InsertMessage(msg)
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	if inserted.Sender.Userid != m.Userid {
		t.Fatalf("got sender %q, want %q", inserted.Sender.Userid, m.Userid)
	}
	if inserted.Room.RoomID != room.RoomID {
		t.Fatalf("got room %q, want %q", inserted.Room.RoomID, room.RoomID)
	}
	if inserted.ID == 0 {
		t.Fatal("expected server-assigned id")
	}
	if inserted.Timestamp.IsZero() {
		t.Fatal("expected server-assigned timestamp")
	}
}

func TestGetMessagesSinceReturnsOnlyNewer(t *testing.T) {
	a := newAdapter(t)
	m, err := a.CreateMember("@erin:chat.example", "erin", true, true)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	room, err := a.CreateRoom("general", false, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		msg, err := a.InsertMessage(&t_.Message{SenderID: m.ID, RoomID: room.ID, Type: t_.MsgText, Text: "hi"})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		ids = append(ids, msg.ID)
	}

	since, err := a.GetMessagesSince(ids[0])
	if err != nil {
		t.Fatalf("GetMessagesSince: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("got %d messages, want 2", len(since))
	}
	for _, m := range since {
		if m.ID <= ids[0] {
			t.Fatalf("got message id %d, want > %d", m.ID, ids[0])
		}
	}
}

func TestGetRepliesFiltersByParentAndType(t *testing.T) {
	a := newAdapter(t)
	m, err := a.CreateMember("@fay:chat.example", "fay", true, true)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	room, err := a.CreateRoom("general", false, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	root, err := a.InsertMessage(&t_.Message{SenderID: m.ID, RoomID: room.ID, Type: t_.MsgText, Text: "root"})
	if err != nil {
		t.Fatalf("insert root: %v", err)
	}
	reply, err := a.InsertMessage(&t_.Message{SenderID: m.ID, RoomID: room.ID, Type: t_.MsgReply, Text: "r1", References: root.ID})
	if err != nil {
		t.Fatalf("insert reply: %v", err)
	}
	// A reaction referencing the same root must not show up as a reply.
	if _, err := a.InsertMessage(&t_.Message{SenderID: m.ID, RoomID: room.ID, Type: t_.MsgReaction, Emoji: "+1", References: root.ID}); err != nil {
		t.Fatalf("insert reaction: %v", err)
	}

	replies, err := a.GetReplies(root.ID)
	if err != nil {
		t.Fatalf("GetReplies: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if replies[0].ID != reply.ID {
		t.Fatalf("got reply id %d, want %d", replies[0].ID, reply.ID)
	}
}
