package config

import (
	"errors"
	"strings"
)

// normalizeJSONC blanks out comments and drops trailing commas so that
// encoding/json can decode the result. Byte offsets are preserved for
// comments so decode errors still point at the right line.
func normalizeJSONC(content string) (string, error) {
	stripped, err := stripComments(content)
	if err != nil {
		return "", err
	}
	return dropTrailingCommas(stripped), nil
}

// jsonScanner tracks whether the cursor is inside a string literal.
type jsonScanner struct {
	inString bool
	escape   bool
}

// step consumes ch and reports whether it belongs to a string literal.
func (s *jsonScanner) step(ch byte) bool {
	if s.inString {
		switch {
		case s.escape:
			s.escape = false
		case ch == '\\':
			s.escape = true
		case ch == '"':
			s.inString = false
		}
		return true
	}
	if ch == '"' {
		s.inString = true
		return true
	}
	return false
}

func stripComments(content string) (string, error) {
	var (
		out  strings.Builder
		scan jsonScanner
	)
	out.Grow(len(content))

	for i := 0; i < len(content); i++ {
		ch := content[i]
		if scan.step(ch) || ch != '/' || i+1 >= len(content) {
			out.WriteByte(ch)
			continue
		}

		switch content[i+1] {
		case '/':
			end := strings.IndexAny(content[i:], "\r\n")
			if end < 0 {
				end = len(content) - i
			}
			out.WriteString(strings.Repeat(" ", end))
			i += end - 1
		case '*':
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				return "", errors.New("unterminated block comment in JSONC")
			}
			blankPreservingLines(&out, content[i:i+2+end+2])
			i += 2 + end + 1
		default:
			out.WriteByte(ch)
		}
	}
	return out.String(), nil
}

func blankPreservingLines(out *strings.Builder, comment string) {
	for j := 0; j < len(comment); j++ {
		switch comment[j] {
		case '\n', '\r', '\t':
			out.WriteByte(comment[j])
		default:
			out.WriteByte(' ')
		}
	}
}

func dropTrailingCommas(content string) string {
	var (
		out  strings.Builder
		scan jsonScanner
	)
	out.Grow(len(content))

	for i := 0; i < len(content); i++ {
		ch := content[i]
		if !scan.step(ch) && ch == ',' {
			rest := strings.TrimLeft(content[i+1:], " \t\r\n")
			if strings.HasPrefix(rest, "}") || strings.HasPrefix(rest, "]") {
				continue
			}
		}
		out.WriteByte(ch)
	}
	return out.String()
}
