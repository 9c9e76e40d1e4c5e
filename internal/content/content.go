// Package content reads the editor's JSON page documents.
package content

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

var ErrInvalidDocument = errors.New("content must be a JSON document object")

// Node is one node of the editor's document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
}

// EmptyDocument is stored for pages created without content.
const EmptyDocument = `{"type":"doc","content":[]}`

// Normalize checks raw is a JSON object and returns it compacted. Empty input
// yields EmptyDocument.
func Normalize(raw []byte) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return EmptyDocument, nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil || doc == nil {
		return "", ErrInvalidDocument
	}
	var b strings.Builder
	encoder := json.NewEncoder(&b)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(doc); err != nil {
		return "", ErrInvalidDocument
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// PlainText flattens a document to its text, one line per block. Documents
// that do not parse yield "".
func PlainText(raw string) string {
	var root Node
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return ""
	}
	var lines []string
	var current strings.Builder
	flush := func() {
		if line := strings.TrimSpace(current.String()); line != "" {
			lines = append(lines, line)
		}
		current.Reset()
	}
	var walk func(node Node)
	walk = func(node Node) {
		switch node.Type {
		case "text":
			current.WriteString(node.Text)
			return
		case "hardBreak":
			current.WriteString(" ")
			return
		}
		for _, child := range node.Content {
			walk(child)
		}
		if isBlock(node.Type) {
			flush()
		}
	}
	walk(root)
	flush()
	return strings.Join(lines, "\n")
}

func isBlock(nodeType string) bool {
	switch nodeType {
	case "paragraph", "heading", "listItem", "blockquote", "codeBlock", "taskItem":
		return true
	}
	return false
}

// Snippet shortens text to at most limit runes on a word boundary.
func Snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)[:limit]
	cut := string(runes)
	if i := strings.LastIndex(cut, " "); i > limit/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
