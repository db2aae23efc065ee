package parser

import (
	"regexp"
	"strings"
)

var (
	objectSpan = regexp.MustCompile(`(?s)\{.*\}`)
	arraySpan  = regexp.MustCompile(`(?s)\[.*\]`)
)

// ExtractSpan returns the candidate JSON text inside raw.
//
// The first greedy {...} run wins, then the first [...] run. When neither
// closes, the tail starting at the first opener is returned so truncation
// repair can still close it. Text with no opener at all yields
// ErrNoStructuredSpan.
func ExtractSpan(raw string) (string, error) {
	if m := objectSpan.FindString(raw); m != "" {
		return m, nil
	}
	if m := arraySpan.FindString(raw); m != "" {
		return m, nil
	}
	if i := strings.IndexAny(raw, "{["); i >= 0 {
		return raw[i:], nil
	}
	return "", ErrNoStructuredSpan
}
