package notation

import (
	"regexp"
	"strings"
)

// conjunctionPattern matches AND as a whole word. Word boundaries are spaces
// so that tokens like "Hand" or "ANDROGEN" are never split.
var conjunctionPattern = regexp.MustCompile(`(?i)(?:^|\s+)AND(?:\s+|$)`)

// splitSegments splits the post-outcome remainder into trimmed, non-empty
// person segments. A conjunction inside a closed parenthetical qualifier is
// part of the note and does not split; an unclosed "(" protects nothing.
func splitSegments(remainder string) []string {
	groups := parentheticalPattern.FindAllStringIndex(remainder, -1)

	var segments []string
	start := 0
	for _, loc := range conjunctionPattern.FindAllStringIndex(remainder, -1) {
		if insideGroup(groups, loc[0]) {
			continue
		}
		segments = appendSegment(segments, remainder[start:loc[0]])
		start = loc[1]
	}
	return appendSegment(segments, remainder[start:])
}

func appendSegment(segments []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		segments = append(segments, s)
	}
	return segments
}

func insideGroup(groups [][]int, offset int) bool {
	for _, g := range groups {
		if offset > g[0] && offset < g[1] {
			return true
		}
	}
	return false
}

// balancedParens reports whether every "(" in s is closed and no ")" appears
// before its opening.
func balancedParens(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return false
			}
			depth--
		}
	}
	return depth == 0
}
