package capability

import (
	"errors"
	"testing"
	"time"

	"github.com/joshuafhiggins/realm-chat/pkg/wire"
)

func newTestValidator() *Validator {
	cache := NewCache(10, time.Minute, time.Hour)
	return &Validator{
		Self:  Identity{ServerID: "realm-1", Domain: "chat.example", Port: 5051},
		Cache: cache,
		Dial: func(addr string, timeout time.Duration) (*wire.Client, error) {
			return nil, errors.New("no auth service reachable in this test")
		},
		Timeout: time.Second,
	}
}

// Cache hit path rejects on userid mismatch, defeating substitution
// attacks (spec.md §4.3's security invariant).
func TestIsValidRejectsSubstitutionOnCacheHit(t *testing.T) {
	v := newTestValidator()
	defer v.Cache.Stop()

	v.Cache.Put("st-1", "@alice:chat.example")

	if !v.IsValid("@alice:chat.example", "st-1") {
		t.Fatal("expected cache hit with matching userid to validate")
	}
	if v.IsValid("@mallory:chat.example", "st-1") {
		t.Fatal("expected cache hit with mismatched userid to be rejected")
	}
}

// On a cache miss with no reachable Auth Service, IsValid must fail closed.
func TestIsValidFailsClosedOnDialError(t *testing.T) {
	v := newTestValidator()
	defer v.Cache.Stop()

	if v.IsValid("@alice:chat.example", "st-unknown") {
		t.Fatal("expected miss + dial failure to be invalid")
	}
}

func TestIsValidRejectsMalformedUserid(t *testing.T) {
	v := newTestValidator()
	defer v.Cache.Stop()

	if v.IsValid("not-a-routable-userid", "st-1") {
		t.Fatal("expected userid with no domain part to be rejected")
	}
}
