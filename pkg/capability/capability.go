// Package capability implements the server-scoped capability token derived
// from a user-scoped bearer token, and the bounded-staleness validation
// cache used on the Chat side (spec.md §3, §4.3, §9).
//
// Derive binds a bearer to exactly one (chat-server identity, endpoint)
// tuple without round-tripping the bearer itself: a chat server proves,
// via the user's home Auth Service, that the caller knows a bearer that
// produces this capability, without that chat server ever learning the
// bearer (spec.md §9).
package capability

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// Derive computes hex(SHA3-256(bearer || serverID || domain || port)).
func Derive(bearer, serverID, domain string, port uint16) string {
	h := sha3.New256()
	h.Write([]byte(bearer))
	h.Write([]byte(serverID))
	h.Write([]byte(domain))
	h.Write([]byte(strconv.FormatUint(uint64(port), 10)))
	return hex.EncodeToString(h.Sum(nil))
}
