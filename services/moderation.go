package services

import (
	"regexp"
	"strings"
)

// Moderator masks banned words in chat messages. Matching is whole-word and
// case-insensitive.
type Moderator struct {
	pattern *regexp.Regexp
}

// NewModerator builds a moderator for words. Blank entries are ignored; with
// no words left, Clean returns text unchanged.
func NewModerator(words []string) *Moderator {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return &Moderator{}
	}
	return &Moderator{pattern: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)}
}

// Clean returns text with every banned word replaced by asterisks, and
// whether anything was masked.
func (m *Moderator) Clean(text string) (string, bool) {
	if m == nil || m.pattern == nil {
		return text, false
	}
	masked := false
	out := m.pattern.ReplaceAllStringFunc(text, func(match string) string {
		masked = true
		return strings.Repeat("*", len([]rune(match)))
	})
	return out, masked
}
