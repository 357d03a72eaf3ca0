package coderunner

import "strings"

// SplitTopLevel splits a test case input on commas that are not nested inside
// brackets or quoted strings. Segments are trimmed and empty ones dropped.
// Malformed input never fails; it degrades to a best-effort split.
func SplitTopLevel(input string) []string {
	return splitTopLevel(input, func(r rune) bool { return r == ',' })
}

// splitStatements additionally treats top-level newlines and semicolons as
// separators so multi-line inputs bind the same way as comma separated ones.
func splitStatements(input string) []string {
	return splitTopLevel(input, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
}

func splitTopLevel(input string, isSeparator func(rune) bool) []string {
	parts := make([]string, 0, 4)
	var buf strings.Builder
	depth := 0
	inSingle, inDouble := false, false
	var prev rune

	flush := func() {
		if segment := strings.TrimSpace(buf.String()); segment != "" {
			parts = append(parts, segment)
		}
		buf.Reset()
	}

	for _, ch := range input {
		switch {
		case ch == '\'' && !inDouble && prev != '\\':
			inSingle = !inSingle
		case ch == '"' && !inSingle && prev != '\\':
			inDouble = !inDouble
		case !inSingle && !inDouble:
			switch ch {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				if depth > 0 {
					depth--
				}
			default:
				if depth == 0 && isSeparator(ch) {
					flush()
					prev = ch
					continue
				}
			}
		}
		buf.WriteRune(ch)
		prev = ch
	}
	flush()

	return parts
}
