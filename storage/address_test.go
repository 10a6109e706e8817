package storage

import "testing"

func TestDeriveDeterministic(t *testing.T) {
	a := Derive("alice", TagTodoList)
	b := Derive("alice", TagTodoList)
	if a != b {
		t.Fatalf("derive not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestDeriveDistinctPairs(t *testing.T) {
	seen := map[Address]string{}
	pairs := []struct{ identity, tag string }{
		{"alice", TagTodoList},
		{"alice", TagNotifications},
		{"bob", TagTodoList},
		{"bob", TagNotifications},
		// Concatenation-ambiguous pairs must still differ.
		{"a", "user-todo-listx"},
		{"xa", "user-todo-list"},
	}
	for _, p := range pairs {
		addr := Derive(p.identity, p.tag)
		if prev, dup := seen[addr]; dup {
			t.Fatalf("collision between (%s,%s) and %s", p.identity, p.tag, prev)
		}
		seen[addr] = p.identity + "/" + p.tag
	}
}

func TestParseAddress(t *testing.T) {
	addr := Derive("alice", TagTodoList)
	parsed, ok := ParseAddress(string(addr))
	if !ok || parsed != addr {
		t.Fatalf("expected round trip, got %q ok=%v", parsed, ok)
	}
	if _, ok := ParseAddress("not-an-address"); ok {
		t.Fatal("expected malformed address to be rejected")
	}
	if _, ok := ParseAddress(string(addr[:63]) + "z"); ok {
		t.Fatal("expected non-hex address to be rejected")
	}
}
