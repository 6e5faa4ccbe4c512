package parser

import "strings"

// scanner tracks brace depth outside of JSON string literals. Its state
// survives across calls to feed, so a record split over many lines is
// scanned once.
type scanner struct {
	depth    int
	inString bool
	escaped  bool
}

// step advances over c and reports whether c belongs to a string literal,
// quotes included.
func (s *scanner) step(c byte) bool {
	if s.inString {
		switch {
		case s.escaped:
			s.escaped = false
		case c == '\\':
			s.escaped = true
		case c == '"':
			s.inString = false
		}
		return true
	}
	switch c {
	case '"':
		s.inString = true
		return true
	case '{':
		s.depth++
	case '}':
		s.depth--
	}
	return false
}

func (s *scanner) feed(text string) {
	for i := 0; i < len(text); i++ {
		s.step(text[i])
	}
}

// braceDepth counts unclosed braces outside of string literals.
func braceDepth(text string) int {
	var s scanner
	s.feed(text)
	return s.depth
}

// stripDanglingCommas removes commas, and the whitespace after them, that
// directly precede a closing bracket or brace. String contents are kept.
func stripDanglingCommas(text string) string {
	var (
		b strings.Builder
		s scanner
	)
	b.Grow(len(text))

	for i := 0; i < len(text); i++ {
		c := text[i]
		if !s.step(c) && c == ',' {
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j < len(text) && (text[j] == ']' || text[j] == '}') {
				i = j - 1
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}
