package models

import (
	"strings"
	"unicode"
)

// NormalizedKey is the one matching function for titles: lower-cased, trimmed,
// trailing parenthetical/bracketed suffixes removed ("Doom (2016)" -> "doom"),
// inner whitespace collapsed.
func NormalizedKey(title string) string {
	key := strings.ToLower(strings.TrimSpace(title))
	for {
		trimmed := stripTrailingGroup(key)
		if trimmed == key {
			break
		}
		key = trimmed
	}
	return strings.Join(strings.FieldsFunc(key, unicode.IsSpace), " ")
}

func stripTrailingGroup(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	var open byte
	switch s[len(s)-1] {
	case ')':
		open = '('
	case ']':
		open = '['
	default:
		return s
	}
	idx := strings.LastIndexByte(s, open)
	if idx <= 0 {
		// a title that is entirely a parenthetical keeps its text
		return s
	}
	return strings.TrimSpace(s[:idx])
}
