package usecase

import (
	"strings"
	"unicode/utf8"
)

// buildSnippet returns a window of about width bytes centered on the first
// occurrence of any term in text. Without a hit the leading window is used.
// Cut edges land on rune boundaries and are marked with an ellipsis.
func buildSnippet(text string, terms []string, width int) string {
	if width <= 0 {
		width = 200
	}
	if len(text) <= width {
		return strings.TrimSpace(text)
	}

	lower := strings.ToLower(text)
	hit := -1
	for _, term := range terms {
		if term == "" {
			continue
		}
		idx := strings.Index(lower, strings.ToLower(term))
		if idx >= 0 && (hit < 0 || idx < hit) {
			hit = idx
		}
	}

	start := 0
	if hit > width/2 {
		start = hit - width/2
	}
	end := start + width
	if end > len(text) {
		end = len(text)
		start = end - width
		if start < 0 {
			start = 0
		}
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	snippet := strings.TrimSpace(text[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet
}
