package util

import (
	"strings"
	"testing"
)

func TestNewIDIsBase62AndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if len(id) != IDLength {
			t.Fatalf("unexpected id length %d for %q", len(id), id)
		}
		for _, r := range id {
			if !strings.ContainsRune(base62Alphabet, r) {
				t.Fatalf("id %q contains non-base62 rune %q", id, r)
			}
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
