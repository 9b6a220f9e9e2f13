package capability

import "testing"

// S2 — capability derivation (spec.md §8).
func TestDeriveMatchesLiteralScenario(t *testing.T) {
	token := "deadbeefcafebabe0123456789abcdef0123456789abcdef0123456789abcd"
	st := Derive(token, "realm-1", "chat.example", 5051)
	if len(st) != 64 {
		t.Fatalf("expected 64 hex chars, got %d (%q)", len(st), st)
	}
	// hex(SHA3-256(token || "realm-1" || "chat.example" || "5051")).
	const want = "bf9f29d0b975dd2a7a3a32a35c9fe8c81472217e9b54becd56b96d1f4c91bc1a"
	if st != want {
		t.Fatalf("Derive = %q, want %q", st, want)
	}
	if st != Derive(token, "realm-1", "chat.example", 5051) {
		t.Fatal("Derive is not deterministic")
	}
}

func TestDeriveChangesWithAnyArgument(t *testing.T) {
	base := Derive("token-a", "realm-1", "chat.example", 5051)
	cases := []string{
		Derive("token-b", "realm-1", "chat.example", 5051),
		Derive("token-a", "realm-2", "chat.example", 5051),
		Derive("token-a", "realm-1", "other.example", 5051),
		Derive("token-a", "realm-1", "chat.example", 5052),
	}
	for _, c := range cases {
		if c == base {
			t.Fatalf("expected derivation to change when an argument changes, got equal: %q", c)
		}
	}
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c := NewCache(10, 0, 0)
	defer c.Stop()

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put("st-1", "@alice:auth.example")
	userid, ok := c.Get("st-1")
	if !ok || userid != "@alice:auth.example" {
		t.Fatalf("got (%q, %v), want (@alice:auth.example, true)", userid, ok)
	}
}

func TestCacheEvictsAtCapacity(t *testing.T) {
	c := NewCache(2, 0, 0)
	defer c.Stop()

	c.Put("a", "u1")
	c.Put("b", "u2")
	c.Put("c", "u3")

	if c.Len() > 2 {
		t.Fatalf("expected capacity-bounded cache, got len=%d", c.Len())
	}
}
