// Command chatd is the Chat Service binary (spec.md §1, C3-Chat-side+C4+C5).
package main

import (
	"context"
	"encoding/json"
	"net"

	"github.com/joshuafhiggins/realm-chat/chat/events"
	"github.com/joshuafhiggins/realm-chat/chat/store"
	t "github.com/joshuafhiggins/realm-chat/chat/store/types"
	"github.com/joshuafhiggins/realm-chat/pkg/rpcerr"
	"github.com/joshuafhiggins/realm-chat/pkg/wire"
)

// Handler dispatches framed requests to the Chat Store engine and the
// event log (spec.md §6's Chat RPC table).
type Handler struct {
	Engine   *store.Engine
	Events   *events.Log
	ServerID string
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (h *Handler) Serve(_ context.Context, _ net.Addr, req *wire.Request) *wire.Response {
	switch req.Op {
	case "get_info":
		return wire.OK(req.ID, struct {
			ServerID string `json:"server_id"`
		}{h.ServerID})

	case "join_server":
		var args struct{ ST, Userid string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		m, err := h.Engine.JoinServer(args.ST, args.Userid)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, m)

	case "leave_server":
		var args struct{ ST, Userid string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.LeaveServer(args.ST, args.Userid); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "kick_user":
		var args struct{ ST, CallerUserid, TargetUserid string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.KickUser(args.ST, args.CallerUserid, args.TargetUserid); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "ban_user":
		var args struct{ ST, CallerUserid, TargetUserid string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.BanUser(args.ST, args.CallerUserid, args.TargetUserid); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "pardon_user":
		var args struct{ ST, CallerUserid, TargetUserid string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.PardonUser(args.ST, args.CallerUserid, args.TargetUserid); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "promote_user":
		var args struct{ ST, CallerUserid, TargetUserid string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.PromoteUser(args.ST, args.CallerUserid, args.TargetUserid); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "demote_user":
		var args struct{ ST, CallerUserid, TargetUserid string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.DemoteUser(args.ST, args.CallerUserid, args.TargetUserid); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "create_room":
		var args struct {
			ST, Userid, RoomID string
			AdminOnlySend      bool `json:"admin_only_send"`
			AdminOnlyView      bool `json:"admin_only_view"`
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		room, err := h.Engine.CreateRoom(args.ST, args.Userid, args.RoomID, args.AdminOnlySend, args.AdminOnlyView)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, room)

	case "delete_room":
		var args struct{ ST, Userid, RoomID string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.DeleteRoom(args.ST, args.Userid, args.RoomID); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "get_rooms":
		var args struct{ ST, Userid string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		rooms, err := h.Engine.GetRooms(args.ST, args.Userid)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, rooms)

	case "get_room":
		var args struct{ ST, Userid, RoomID string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		room, err := h.Engine.GetRoom(args.ST, args.Userid, args.RoomID)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, room)

	case "send_message":
		var args struct {
			ST      string
			Message struct {
				SenderUserid string    `json:"sender_userid"`
				RoomID       string    `json:"room_id"`
				Type         t.MsgType `json:"type"`
				Text         string    `json:"text"`
				References   int64     `json:"references"`
				Emoji        string    `json:"emoji"`
			}
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		in := store.InputMessage{
			SenderUserid: args.Message.SenderUserid,
			RoomID:       args.Message.RoomID,
			Type:         args.Message.Type,
			Text:         args.Message.Text,
			References:   args.Message.References,
			Emoji:        args.Message.Emoji,
		}
		msg, err := h.Engine.SendMessage(args.ST, in)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, msg)

	case "get_message":
		var args struct {
			ST, Userid string
			ID         int64
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		msg, err := h.Engine.GetMessage(args.ST, args.Userid, args.ID)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, msg)

	case "get_messages_since":
		var args struct {
			ST, Userid string
			AfterID    int64 `json:"after_id"`
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		msgs, err := h.Engine.GetMessagesSince(args.ST, args.Userid, args.AfterID)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, msgs)

	case "get_reply_chain":
		var args struct {
			ST, Userid string
			Head       int64
			Depth      int
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		chain, err := h.Engine.GetReplyChain(args.ST, args.Userid, args.Head, args.Depth)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, chain)

	case "broadcast_typing":
		var args struct{ ST, Userid, RoomID string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.BroadcastTyping(args.ST, args.Userid, args.RoomID); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "poll_events_since":
		var args struct {
			AfterIndex uint32 `json:"after_index"`
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		return wire.OK(req.ID, h.Events.PollEventsSince(args.AfterIndex))

	default:
		return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
	}
}
