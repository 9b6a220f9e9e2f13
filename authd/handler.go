// Command authd is the Auth Service binary (spec.md §1, C1+C2+C3-Auth-side).
package main

import (
	"context"
	"encoding/json"
	"net"

	"github.com/joshuafhiggins/realm-chat/auth/flow"
	"github.com/joshuafhiggins/realm-chat/pkg/rpcerr"
	"github.com/joshuafhiggins/realm-chat/pkg/wire"
)

// Handler dispatches framed requests to the Login Flow Engine (spec.md §6's
// Auth RPC table).
type Handler struct {
	Engine *flow.Engine
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Serve is the dispatch.Handler entry point.
func (h *Handler) Serve(_ context.Context, _ net.Addr, req *wire.Request) *wire.Response {
	switch req.Op {
	case "create_account_flow":
		var args struct{ Username, Email string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.CreateAccountFlow(args.Username, args.Email); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "create_login_flow":
		var args struct{ Username, Email *string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.CreateLoginFlow(args.Username, args.Email); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "finish_login_flow":
		var args struct {
			Username  string
			LoginCode string `json:"login_code"`
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		token, err := h.Engine.FinishLoginFlow(args.Username, args.LoginCode)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, token)

	case "change_email_flow":
		var args struct{ Username, Token, NewEmail string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.ChangeEmailFlow(args.Username, args.Token, args.NewEmail); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "finish_change_email_flow":
		var args struct {
			Username, Token, NewEmail string
			LoginCode                 string `json:"login_code"`
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.FinishChangeEmailFlow(args.Username, args.Token, args.NewEmail, args.LoginCode); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "change_avatar":
		var args struct{ Username, Token, Avatar string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.ChangeAvatar(args.Username, args.Token, args.Avatar); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "get_all_data":
		var args struct{ Username, Token string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		u, err := h.Engine.GetAllData(args.Username, args.Token)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, u)

	case "sign_out":
		var args struct{ Username, Token string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.SignOut(args.Username, args.Token); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "delete_account_flow":
		var args struct{ Username, Token string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.DeleteAccountFlow(args.Username, args.Token); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "finish_delete_account_flow":
		var args struct {
			Username, Token string
			LoginCode       string `json:"login_code"`
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.FinishDeleteAccountFlow(args.Username, args.Token, args.LoginCode); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "add_server":
		var args struct {
			Username, Token, Domain string
			Port                    uint16
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.AddServer(args.Username, args.Token, args.Domain, args.Port); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "remove_server":
		var args struct {
			Username, Token, Domain string
			Port                    uint16
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		if err := h.Engine.RemoveServer(args.Username, args.Token, args.Domain, args.Port); err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, struct{}{})

	case "get_joined_servers":
		var args struct{ Username, Token string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		servers, err := h.Engine.GetJoinedServers(args.Username, args.Token)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, servers)

	case "server_token_validation":
		var args struct {
			ServerToken string `json:"server_token"`
			Username    string
			ServerID    string `json:"server_id"`
			Domain      string
			Port        uint16
		}
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		valid := h.Engine.ServerTokenValidation(args.ServerToken, args.Username, args.ServerID, args.Domain, args.Port)
		return wire.OK(req.ID, valid)

	case "get_avatar_for_user":
		var args struct{ Username string }
		if err := decode(req.Args, &args); err != nil {
			return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
		}
		avatar, err := h.Engine.GetAvatarForUser(args.Username)
		if err != nil {
			return wire.Fail(req.ID, string(rpcerr.CodeOf(err)))
		}
		return wire.OK(req.ID, avatar)

	default:
		return wire.Fail(req.ID, string(rpcerr.ErrGeneric))
	}
}
