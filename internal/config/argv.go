package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	errOpenQuote  = errors.New("unterminated quote")
	errOpenEscape = errors.New("unterminated escape sequence")
)

// splitCommand turns capture.command into argv. Single and double quotes
// group words and a backslash takes the next rune literally. Nothing is
// expanded, so {device} survives for the camera to substitute. A blank or
// commented-out command yields nil and keeps the built-in grab.
func splitCommand(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return nil, nil
	}

	lx := commandLexer{}
	for _, r := range line {
		lx.feed(r)
	}
	if err := lx.end(); err != nil {
		return nil, fmt.Errorf("%w in command: %q", err, line)
	}
	return lx.words, nil
}

type commandLexer struct {
	words   []string
	word    strings.Builder
	inWord  bool
	quote   rune
	escaped bool
}

func (lx *commandLexer) feed(r rune) {
	switch {
	case lx.escaped:
		lx.escaped = false
		lx.add(r)
	case r == '\\':
		lx.escaped = true
		lx.inWord = true
	case lx.quote != 0 && r == lx.quote:
		lx.quote = 0
	case lx.quote != 0:
		lx.add(r)
	case r == '"' || r == '\'':
		lx.quote = r
		lx.inWord = true
	case unicode.IsSpace(r):
		lx.cut()
	default:
		lx.add(r)
	}
}

func (lx *commandLexer) add(r rune) {
	lx.word.WriteRune(r)
	lx.inWord = true
}

// cut closes the current word. Empty quotes still count as an argument.
func (lx *commandLexer) cut() {
	if !lx.inWord {
		return
	}
	lx.words = append(lx.words, lx.word.String())
	lx.word.Reset()
	lx.inWord = false
}

func (lx *commandLexer) end() error {
	switch {
	case lx.escaped:
		return errOpenEscape
	case lx.quote != 0:
		return errOpenQuote
	}
	lx.cut()
	return nil
}
