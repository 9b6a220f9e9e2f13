package flow_test

import (
	"path/filepath"
	"testing"

	"github.com/joshuafhiggins/realm-chat/auth/flow"
	"github.com/joshuafhiggins/realm-chat/auth/mail/mailtest"
	"github.com/joshuafhiggins/realm-chat/auth/store/adapter"
	"github.com/joshuafhiggins/realm-chat/pkg/capability"
	"github.com/joshuafhiggins/realm-chat/pkg/rpcerr"
)

const testDomain = "auth.example"

func newEngine(t *testing.T) (*flow.Engine, *mailtest.Recorder) {
	t.Helper()
	a := adapter.Get("sqlite")
	if a == nil {
		t.Fatal("sqlite adapter not registered")
	}
	dsn := filepath.Join(t.TempDir(), "auth.db")
	if err := a.Open(dsn); err != nil {
		t.Fatalf("opening sqlite adapter: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	if err := a.CreateSchema(); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	sender := &mailtest.Recorder{}
	return flow.NewEngine(a, sender, testDomain), sender
}

// S1 — signup + login (spec.md §8).
func TestCreateAccountThenFinishLogin(t *testing.T) {
	e, sender := newEngine(t)

	username := "@alice:" + testDomain
	if err := e.CreateAccountFlow(username, "alice@x.test"); err != nil {
		t.Fatalf("CreateAccountFlow: %v", err)
	}

	sent := sender.Last()
	if sent.To != "alice@x.test" {
		t.Fatalf("expected code emailed to alice@x.test, got %q", sent.To)
	}
	code := extractCode(t, sent.Body)

	token, err := e.FinishLoginFlow(username, code)
	if err != nil {
		t.Fatalf("FinishLoginFlow: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected 64 hex char bearer, got %d chars", len(token))
	}

	if _, err := e.FinishLoginFlow(username, code); rpcerr.CodeOf(err) != rpcerr.InvalidLoginCode {
		t.Fatalf("expected InvalidLoginCode reusing a consumed code, got %v", err)
	}
}

// Username uniqueness (spec.md §8 property 1).
func TestCreateAccountUsernameUniqueness(t *testing.T) {
	e, _ := newEngine(t)
	username := "@bob:" + testDomain

	if err := e.CreateAccountFlow(username, "bob@x.test"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := e.CreateAccountFlow(username, "bob2@x.test")
	if rpcerr.CodeOf(err) != rpcerr.UsernameTaken {
		t.Fatalf("expected UsernameTaken on duplicate, got %v", err)
	}
}

func TestCreateAccountRejectsBadUsername(t *testing.T) {
	e, _ := newEngine(t)
	err := e.CreateAccountFlow("not-a-username", "carol@x.test")
	if rpcerr.CodeOf(err) != rpcerr.InvalidUsername {
		t.Fatalf("expected InvalidUsername, got %v", err)
	}
}

func TestSignOutRequiresActiveToken(t *testing.T) {
	e, sender := newEngine(t)
	username := "@dave:" + testDomain
	if err := e.CreateAccountFlow(username, "dave@x.test"); err != nil {
		t.Fatalf("create: %v", err)
	}
	code := extractCode(t, sender.Last().Body)
	token, err := e.FinishLoginFlow(username, code)
	if err != nil {
		t.Fatalf("finish login: %v", err)
	}

	if err := e.SignOut(username, token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if err := e.SignOut(username, token); rpcerr.CodeOf(err) != rpcerr.Unauthorized {
		t.Fatalf("expected Unauthorized removing an already-removed token, got %v", err)
	}
}

// Token scoping (spec.md §8 property 2): ServerTokenValidation validates
// iff the bearer is in the active token set, and only for the exact
// (server_id, domain, port) it was derived against.
func TestServerTokenValidationScoping(t *testing.T) {
	e, sender := newEngine(t)
	username := "@erin:" + testDomain
	if err := e.CreateAccountFlow(username, "erin@x.test"); err != nil {
		t.Fatalf("create: %v", err)
	}
	code := extractCode(t, sender.Last().Body)
	token, err := e.FinishLoginFlow(username, code)
	if err != nil {
		t.Fatalf("finish login: %v", err)
	}

	st := capability.Derive(token, "realm-1", "chat.example", 5051)
	if !e.ServerTokenValidation(st, username, "realm-1", "chat.example", 5051) {
		t.Fatal("expected matching capability to validate")
	}
	if e.ServerTokenValidation(st, username, "realm-2", "chat.example", 5051) {
		t.Fatal("expected mismatched server_id to invalidate")
	}
	if e.ServerTokenValidation(st, username, "realm-1", "other.example", 5051) {
		t.Fatal("expected mismatched domain to invalidate")
	}
	if e.ServerTokenValidation(st, username, "realm-1", "chat.example", 9999) {
		t.Fatal("expected mismatched port to invalidate")
	}

	if err := e.SignOut(username, token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if e.ServerTokenValidation(st, username, "realm-1", "chat.example", 5051) {
		t.Fatal("expected capability to stop validating once its bearer is signed out")
	}
}

func extractCode(t *testing.T, body string) string {
	t.Helper()
	for i := 0; i+6 <= len(body); i++ {
		candidate := body[i : i+6]
		allDigits := true
		for _, r := range candidate {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return candidate
		}
	}
	t.Fatalf("no 6-digit code found in body %q", body)
	return ""
}
