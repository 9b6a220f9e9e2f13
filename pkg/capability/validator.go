package capability

import (
	"strconv"
	"time"

	"github.com/joshuafhiggins/realm-chat/pkg/wire"
)

// AuthPort is the well-known Auth Service RPC port (spec.md §4.3).
const AuthPort = 5052

// ServerTokenValidationArgs is the Chat -> Auth RPC argument for
// server_token_validation (spec.md §6).
type ServerTokenValidationArgs struct {
	ServerToken string `json:"server_token"`
	Username    string `json:"username"`
	ServerID    string `json:"server_id"`
	Domain      string `json:"domain"`
	Port        uint16 `json:"port"`
}

// Identity describes the local chat server's (server_id, domain, port)
// tuple, bound into every derived capability.
type Identity struct {
	ServerID string
	Domain   string
	Port     uint16
}

// Dialer opens a client connection to an Auth Service at addr
// ("domain:port"). Extracted as a function type so tests can stub it.
type Dialer func(addr string, timeout time.Duration) (*wire.Client, error)

// Validator implements the Chat-side is_stoken_valid primitive: consult the
// cache, and on miss call back to the claimed user's home Auth Service
// (spec.md §4.3).
type Validator struct {
	Self   Identity
	Cache  *Cache
	Dial   Dialer
	Timeout time.Duration
}

// NewValidator builds a Validator using wire.Dial as the default dialer.
func NewValidator(self Identity, cache *Cache) *Validator {
	return &Validator{
		Self:  self,
		Cache: cache,
		Dial: func(addr string, timeout time.Duration) (*wire.Client, error) {
			return wire.Dial(addr, timeout)
		},
		Timeout: 5 * time.Second,
	}
}

// domainOf splits "@local:domain" into its domain part.
func domainOf(userid string) string {
	for i := 0; i < len(userid); i++ {
		if userid[i] == ':' {
			return userid[i+1:]
		}
	}
	return ""
}

// IsValid checks that st is a valid capability for claimedUserid against
// this chat server's identity. The cache hit path compares the cached
// userid to claimedUserid and rejects on mismatch, defeating
// token-substitution attacks (spec.md §4.3's security invariant).
func (v *Validator) IsValid(claimedUserid, st string) bool {
	if cached, ok := v.Cache.Get(st); ok {
		return cached == claimedUserid
	}

	domain := domainOf(claimedUserid)
	if domain == "" {
		return false
	}

	client, err := v.Dial(domain+":"+strconv.Itoa(AuthPort), v.Timeout)
	if err != nil {
		return false
	}
	defer client.Close()

	var valid bool
	deadline := time.Now().Add(v.Timeout)
	args := ServerTokenValidationArgs{
		ServerToken: st,
		Username:    claimedUserid,
		ServerID:    v.Self.ServerID,
		Domain:      v.Self.Domain,
		Port:        v.Self.Port,
	}
	ok, _, err := client.Call(deadline, "server_token_validation", args, &valid)
	if err != nil || !ok || !valid {
		// Negative results are never cached (spec.md §4.3).
		return false
	}

	v.Cache.Put(st, claimedUserid)
	return true
}
