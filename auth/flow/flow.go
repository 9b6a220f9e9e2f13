// Package flow implements the Login Flow Engine (spec.md §4.2, C2): the
// two-phase create-account/login/change-email/delete-account state
// machines, each an initiator RPC that mutates state and dispatches an
// out-of-band login code by email, followed by a completion RPC that
// verifies the code.
package flow

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/joshuafhiggins/realm-chat/auth/mail"
	"github.com/joshuafhiggins/realm-chat/auth/store/adapter"
	t "github.com/joshuafhiggins/realm-chat/auth/store/types"
	"github.com/joshuafhiggins/realm-chat/pkg/capability"
	"github.com/joshuafhiggins/realm-chat/pkg/rpcerr"
)

// Engine ties the Identity Store adapter to the mail sender and this
// service's configured domain (spec.md §6's DOMAIN variable, used for
// username validation).
type Engine struct {
	Store  adapter.Adapter
	Mail   mail.Sender
	Domain string
}

// NewEngine builds a flow Engine.
func NewEngine(store adapter.Adapter, sender mail.Sender, domain string) *Engine {
	return &Engine{Store: store, Mail: sender, Domain: domain}
}

// usernamePatternFor builds the `^@[A-Za-z0-9]+:domain$` gate for domain
// (spec.md §4.2). Compiled fresh per Engine since domain is configured,
// not a compile-time constant.
func usernamePatternFor(domain string) *regexp.Regexp {
	return regexp.MustCompile(`^@[A-Za-z0-9]+:` + regexp.QuoteMeta(domain) + `$`)
}

func (e *Engine) validUsername(username string) bool {
	return usernamePatternFor(e.Domain).MatchString(username)
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// genLoginCode mints a uniformly random 6-digit code in [100000, 999999]
// (nonzero leading digit, spec.md §3/§4.2).
func genLoginCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

// mintBearer derives a fresh bearer token = hex(SHA3-256(username || code ||
// now_utc)) (spec.md §4.2).
func mintBearer(username, code string, now time.Time) string {
	h := sha3.New256()
	h.Write([]byte(username))
	h.Write([]byte(code))
	h.Write([]byte(now.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, adapter.ErrNotFound):
		return rpcerr.New(rpcerr.UserNotFound, err)
	case errors.Is(err, adapter.ErrUsernameTaken):
		return rpcerr.New(rpcerr.UsernameTaken, err)
	case errors.Is(err, adapter.ErrEmailTaken):
		return rpcerr.New(rpcerr.EmailTaken, err)
	case errors.Is(err, adapter.ErrTokenNotFound):
		return rpcerr.New(rpcerr.Unauthorized, err)
	case errors.Is(err, adapter.ErrAlreadyJoined):
		return rpcerr.New(rpcerr.AlreadyJoinedServer, err)
	case errors.Is(err, adapter.ErrNotJoined):
		return rpcerr.New(rpcerr.NotInServer, err)
	default:
		return rpcerr.New(rpcerr.MalformedDBResponse, err)
	}
}

// sendCode dispatches a login-code email, mapping transport failures per
// spec.md §4.2 ("email dispatch failures are surfaced... and must abort
// the flow before persisting the code where feasible").
func (e *Engine) sendCode(to, subject, code string) error {
	if err := e.Mail.Send(to, subject, "Your login code is "+code); err != nil {
		if mail.IsConnectFailure(err) {
			return rpcerr.New(rpcerr.UnableToConnectToMail, err)
		}
		return rpcerr.New(rpcerr.UnableToSendMail, err)
	}
	return nil
}

// authorize requires that token be one of username's active bearers,
// reporting Unauthorized otherwise (used by every bearer-gated operation).
func (e *Engine) authorize(username, token string) (*t.User, error) {
	u, err := e.Store.GetUserByUsername(username)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !u.HasToken(token) {
		return nil, rpcerr.New(rpcerr.Unauthorized, nil)
	}
	return u, nil
}

// CreateAccountFlow validates the username/email, inserts a new user with
// a freshly minted login code, and emails it. Completion is
// FinishLoginFlow, same as an ordinary login (spec.md §4.2).
func (e *Engine) CreateAccountFlow(username, email string) error {
	if !e.validUsername(username) {
		return rpcerr.New(rpcerr.InvalidUsername, nil)
	}
	if !validEmail(email) {
		return rpcerr.New(rpcerr.InvalidEmail, nil)
	}

	code, err := genLoginCode()
	if err != nil {
		return rpcerr.New(rpcerr.ErrGeneric, err)
	}

	// Dispatch before persisting where feasible (spec.md §4.2); here we
	// must create the row first since the code is stored directly on it,
	// so a send failure is handled by deleting the half-created account.
	if _, err := e.Store.CreateUser(username, email); err != nil {
		return mapStoreErr(err)
	}
	if err := e.Store.SetLoginCode(username, code); err != nil {
		_ = e.Store.DeleteUser(username)
		return mapStoreErr(err)
	}
	if err := e.sendCode(email, "Your account code", code); err != nil {
		_ = e.Store.DeleteUser(username)
		return err
	}
	return nil
}

// CreateLoginFlow accepts either a username or an email, resolves the
// counterpart, mints a code, persists it, and emails it (spec.md §4.2).
func (e *Engine) CreateLoginFlow(username, email *string) error {
	var u *t.User
	var err error

	switch {
	case username != nil && *username != "":
		if !e.validUsername(*username) {
			return rpcerr.New(rpcerr.InvalidUsername, nil)
		}
		u, err = e.Store.GetUserByUsername(*username)
	case email != nil && *email != "":
		if !validEmail(*email) {
			return rpcerr.New(rpcerr.InvalidEmail, nil)
		}
		u, err = e.Store.GetUserByEmail(*email)
	default:
		return rpcerr.New(rpcerr.InvalidUsername, nil)
	}
	if err != nil {
		return mapStoreErr(err)
	}

	code, err := genLoginCode()
	if err != nil {
		return rpcerr.New(rpcerr.ErrGeneric, err)
	}
	if err := e.Store.SetLoginCode(u.Username, code); err != nil {
		return mapStoreErr(err)
	}
	if err := e.sendCode(u.Email, "Your login code", code); err != nil {
		_ = e.Store.ClearLoginCode(u.Username)
		return err
	}
	return nil
}

// FinishLoginFlow verifies the pending code, clears it (codes are
// single-use), mints a fresh bearer, and appends it to the active token
// set (spec.md §4.2).
func (e *Engine) FinishLoginFlow(username, code string) (string, error) {
	if !e.validUsername(username) {
		return "", rpcerr.New(rpcerr.InvalidUsername, nil)
	}
	ok, err := e.Store.VerifyLoginCode(username, code)
	if err != nil {
		return "", mapStoreErr(err)
	}
	if !ok {
		return "", rpcerr.New(rpcerr.InvalidLoginCode, nil)
	}
	// Codes are single-use (spec.md §4.2): a successful verification
	// clears the code here. A failed attempt leaves it in place.
	if err := e.Store.ClearLoginCode(username); err != nil {
		return "", mapStoreErr(err)
	}

	token := mintBearer(username, code, time.Now())
	if err := e.Store.AppendToken(username, token); err != nil {
		return "", mapStoreErr(err)
	}
	return token, nil
}

// ChangeEmailFlow requires a valid bearer, checks the new email is free,
// records it as pending, mints a code, and emails the *new* address
// (spec.md §4.2).
func (e *Engine) ChangeEmailFlow(username, token, newEmail string) error {
	if _, err := e.authorize(username, token); err != nil {
		return err
	}
	if !validEmail(newEmail) {
		return rpcerr.New(rpcerr.InvalidEmail, nil)
	}
	if _, err := e.Store.GetUserByEmail(newEmail); err == nil {
		return rpcerr.New(rpcerr.EmailTaken, nil)
	} else if !errors.Is(err, adapter.ErrNotFound) {
		return mapStoreErr(err)
	}

	code, err := genLoginCode()
	if err != nil {
		return rpcerr.New(rpcerr.ErrGeneric, err)
	}
	if err := e.Store.SetPendingEmail(username, newEmail); err != nil {
		return mapStoreErr(err)
	}
	if err := e.Store.SetLoginCode(username, code); err != nil {
		return mapStoreErr(err)
	}
	if err := e.sendCode(newEmail, "Confirm your new email", code); err != nil {
		return err
	}
	return nil
}

// FinishChangeEmailFlow re-checks email vacancy, verifies the code,
// commits pending_new_email -> email, and clears state (spec.md §4.2).
func (e *Engine) FinishChangeEmailFlow(username, token, newEmail, code string) error {
	if _, err := e.authorize(username, token); err != nil {
		return err
	}
	if _, err := e.Store.GetUserByEmail(newEmail); err == nil {
		return rpcerr.New(rpcerr.EmailTaken, nil)
	} else if !errors.Is(err, adapter.ErrNotFound) {
		return mapStoreErr(err)
	}

	ok, err := e.Store.VerifyLoginCode(username, code)
	if err != nil {
		return mapStoreErr(err)
	}
	if !ok {
		return rpcerr.New(rpcerr.InvalidLoginCode, nil)
	}
	if err := e.Store.ClearLoginCode(username); err != nil {
		return mapStoreErr(err)
	}
	if err := e.Store.CommitPendingEmail(username); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// ChangeAvatar requires a valid bearer and updates the opaque avatar
// reference (spec.md §6).
func (e *Engine) ChangeAvatar(username, token, avatar string) error {
	if _, err := e.authorize(username, token); err != nil {
		return err
	}
	if err := e.Store.SetAvatar(username, avatar); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// GetAllData requires a valid bearer and returns the full user record
// (spec.md §6).
func (e *Engine) GetAllData(username, token string) (*t.User, error) {
	return e.authorize(username, token)
}

// SignOut removes a single token, reporting Unauthorized if it was not
// present (spec.md §4.2).
func (e *Engine) SignOut(username, token string) error {
	if err := e.Store.RemoveToken(username, token); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// DeleteAccountFlow requires a bearer, mints a code, and emails it; the
// account is only removed on FinishDeleteAccountFlow (spec.md §4.2).
func (e *Engine) DeleteAccountFlow(username, token string) error {
	u, err := e.authorize(username, token)
	if err != nil {
		return err
	}
	code, err := genLoginCode()
	if err != nil {
		return rpcerr.New(rpcerr.ErrGeneric, err)
	}
	if err := e.Store.SetLoginCode(username, code); err != nil {
		return mapStoreErr(err)
	}
	if err := e.sendCode(u.Email, "Confirm account deletion", code); err != nil {
		return err
	}
	return nil
}

// FinishDeleteAccountFlow verifies the code and removes the user entirely
// (spec.md §4.2).
func (e *Engine) FinishDeleteAccountFlow(username, token, code string) error {
	if _, err := e.authorize(username, token); err != nil {
		return err
	}
	ok, err := e.Store.VerifyLoginCode(username, code)
	if err != nil {
		return mapStoreErr(err)
	}
	if !ok {
		return rpcerr.New(rpcerr.InvalidLoginCode, nil)
	}
	if err := e.Store.DeleteUser(username); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// AddServer requires a valid bearer and records that username has joined
// "domain:port" (spec.md §6).
func (e *Engine) AddServer(username, token, domain string, port uint16) error {
	if _, err := e.authorize(username, token); err != nil {
		return err
	}
	if err := e.Store.AddJoinedServer(username, endpointOf(domain, port)); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// RemoveServer is AddServer's symmetric counterpart.
func (e *Engine) RemoveServer(username, token, domain string, port uint16) error {
	if _, err := e.authorize(username, token); err != nil {
		return err
	}
	if err := e.Store.RemoveJoinedServer(username, endpointOf(domain, port)); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// GetJoinedServers requires a valid bearer and returns the joined-server
// list.
func (e *Engine) GetJoinedServers(username, token string) ([]string, error) {
	u, err := e.authorize(username, token)
	if err != nil {
		return nil, err
	}
	return u.JoinedServers, nil
}

// GetAvatarForUser is callable by anyone (spec.md §6: "NOTE: Anyone can
// call").
func (e *Engine) GetAvatarForUser(username string) (string, error) {
	u, err := e.Store.GetUserByUsername(username)
	if err != nil {
		return "", mapStoreErr(err)
	}
	return u.Avatar, nil
}

// ServerTokenValidation implements the Auth-side half of the Capability
// Validator (spec.md §4.3): it iterates the user's active tokens and
// reports whether any of them derives st for (serverID, domain, port).
func (e *Engine) ServerTokenValidation(st, username, serverID, domain string, port uint16) bool {
	u, err := e.Store.GetUserByUsername(username)
	if err != nil {
		return false
	}
	for _, bearer := range u.Tokens {
		if capability.Derive(bearer, serverID, domain, port) == st {
			return true
		}
	}
	return false
}

func endpointOf(domain string, port uint16) string {
	return domain + ":" + strconv.FormatUint(uint64(port), 10)
}
