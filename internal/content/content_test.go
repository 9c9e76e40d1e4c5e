package content

import (
	"errors"
	"testing"
)

const sampleDoc = `{
	"type": "doc",
	"content": [
		{"type": "heading", "attrs": {"level": 1}, "content": [{"type": "text", "text": "Groceries"}]},
		{"type": "paragraph", "content": [
			{"type": "text", "text": "eggs "},
			{"type": "text", "text": "and milk", "marks": [{"type": "bold"}]}
		]},
		{"type": "bulletList", "content": [
			{"type": "listItem", "content": [{"type": "paragraph", "content": [{"type": "text", "text": "bread"}]}]}
		]}
	]
}`

func TestPlainText(t *testing.T) {
	got := PlainText(sampleDoc)
	want := "Groceries\neggs and milk\nbread"
	if got != want {
		t.Fatalf("PlainText = %q, want %q", got, want)
	}
	if PlainText("not json") != "" {
		t.Error("expected empty text for invalid document")
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize([]byte(`  {"type": "doc", "content": []}  `))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if got != `{"content":[],"type":"doc"}` {
		t.Errorf("unexpected normalized form %s", got)
	}

	if got, err := Normalize(nil); err != nil || got != EmptyDocument {
		t.Errorf("expected empty document, got %q, %v", got, err)
	}

	for _, bad := range []string{`[1,2]`, `"text"`, `{broken`} {
		if _, err := Normalize([]byte(bad)); !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("Normalize(%s) expected ErrInvalidDocument, got %v", bad, err)
		}
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("short  text", 50); got != "short text" {
		t.Errorf("unexpected snippet %q", got)
	}
	if got := Snippet("the quick brown fox jumps over the lazy dog", 20); got != "the quick brown fox…" {
		t.Errorf("unexpected snippet %q", got)
	}
}
