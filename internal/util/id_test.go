package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefixAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID("pg")
		if !strings.HasPrefix(id, "pg_") {
			t.Fatalf("expected pg_ prefix, got %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatal("expected bare id without prefix separator")
	}
}
