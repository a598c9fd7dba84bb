package store

import (
	"strings"

	"computeruse-backend/internal/models"
)

// SnippetMaxLen is the maximum snippet length in characters.
const SnippetMaxLen = 200

// TextOf joins the text blocks of a message with a single space.
func TextOf(content models.Content) string {
	parts := make([]string, 0, len(content))
	for _, b := range content {
		if b.Type == models.BlockTypeText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Matches reports whether text contains query, ignoring case.
func Matches(text, query string) bool {
	if query == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(query))
}

// Snippet truncates text to SnippetMaxLen characters.
func Snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= SnippetMaxLen {
		return text
	}
	return string(runes[:SnippetMaxLen])
}
