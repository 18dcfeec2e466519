// Package tokenizer splits document text into lowercased alphabetic words
// and numbers them. A word is a maximal run of ASCII letters; every other
// byte is a separator. Positions start at 1 and continue across lines, so a
// document's positions are its word ordinals.
package tokenizer

import (
	"bufio"
	"io"
	"strings"
)

// Token is one word occurrence.
type Token struct {
	Term     string
	Position int
}

// Scanner reads tokens from a reader one at a time.
type Scanner struct {
	r   *bufio.Reader
	buf []byte
	pos int
	tok Token
	err error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:   bufio.NewReaderSize(r, 64*1024),
		buf: make([]byte, 0, 32),
	}
}

// Scan advances to the next token. It returns false at end of input or on a
// read error; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	s.buf = s.buf[:0]
	for {
		c, err := s.r.ReadByte()
		if err != nil {
			if err != io.EOF {
				s.err = err
				return false
			}
			if len(s.buf) == 0 {
				return false
			}
			break
		}
		if lower, ok := letter(c); ok {
			s.buf = append(s.buf, lower)
			continue
		}
		if len(s.buf) > 0 {
			break
		}
	}
	s.pos++
	s.tok = Token{Term: string(s.buf), Position: s.pos}
	return true
}

func (s *Scanner) Token() Token {
	return s.tok
}

func (s *Scanner) Err() error {
	return s.err
}

// Tokenize returns every token of text.
func Tokenize(text string) []Token {
	sc := NewScanner(strings.NewReader(text))
	tokens := make([]Token, 0, len(text)/6)
	for sc.Scan() {
		tokens = append(tokens, sc.Token())
	}
	return tokens
}

// Normalize lowercases word and reports whether it is a valid term, that is
// a non-empty run of ASCII letters.
func Normalize(word string) (string, bool) {
	if word == "" {
		return "", false
	}
	b := make([]byte, len(word))
	for i := 0; i < len(word); i++ {
		lower, ok := letter(word[i])
		if !ok {
			return "", false
		}
		b[i] = lower
	}
	return string(b), true
}

func letter(c byte) (byte, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return c, true
	case c >= 'A' && c <= 'Z':
		return c + ('a' - 'A'), true
	default:
		return 0, false
	}
}
