package textrep

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokLong
	tokFloat
	tokString
	tokLabel
	// symbols
	tokEq     // =
	tokColon  // :
	tokComma  // ,
	tokLBrace // {
	tokRBrace // }
	tokLBrack // [
	tokRBrack // ]
	tokLParen // (
	tokRParen // )
	tokLt     // <
	tokGt     // >
	tokError
)

var tokNames = map[tokKind]string{
	tokEOF: "end of input", tokIdent: "identifier", tokInt: "int", tokLong: "long",
	tokFloat: "double", tokString: "string", tokLabel: "label", tokEq: "'='",
	tokColon: "':'", tokComma: "','", tokLBrace: "'{'", tokRBrace: "'}'",
	tokLBrack: "'['", tokRBrack: "']'", tokLParen: "'('", tokRParen: "')'",
	tokLt: "'<'", tokGt: "'>'", tokError: "error",
}

func (k tokKind) String() string { return tokNames[k] }

type token struct {
	kind tokKind
	lit  string
	pos  int
}

type lexer struct {
	src []byte
	off int
	cur token
}

func newLexer(src []byte) *lexer { return &lexer{src: src} }

var symbols = map[byte]tokKind{
	'=': tokEq, ':': tokColon, ',': tokComma, '{': tokLBrace, '}': tokRBrace,
	'[': tokLBrack, ']': tokRBrack, '(': tokLParen, ')': tokRParen, '<': tokLt, '>': tokGt,
}

func (lx *lexer) next() {
	lx.skipSpaceAndComments()
	start := lx.off
	if lx.off >= len(lx.src) {
		lx.cur = token{kind: tokEOF, pos: start}
		return
	}
	b := lx.src[lx.off]
	switch {
	case isIdentStart(b):
		lit := lx.ident()
		kind := tokIdent
		if lit == "inf" || lit == "nan" {
			kind = tokFloat
		}
		lx.cur = token{kind: kind, lit: lit, pos: start}
	case b == '$':
		lx.off++
		lit := lx.ident()
		if lit == "" {
			lx.cur = token{kind: tokError, lit: "empty label", pos: start}
			return
		}
		lx.cur = token{kind: tokLabel, lit: lit, pos: start}
	case b == '-' && lx.hasPrefix("-inf"):
		lx.off += len("-inf")
		lx.cur = token{kind: tokFloat, lit: "-inf", pos: start}
	case isDigit(b) || (b == '-' || b == '+') && lx.peekIsDigit():
		lx.number()
	case b == '"':
		s, n, err := scanString(lx.src[lx.off:])
		if err != nil {
			lx.cur = token{kind: tokError, lit: err.Error(), pos: start}
			lx.off = len(lx.src)
			return
		}
		lx.off += n
		lx.cur = token{kind: tokString, lit: s, pos: start}
	default:
		k, ok := symbols[b]
		lx.off++
		if !ok {
			lx.cur = token{kind: tokError, lit: fmt.Sprintf("unexpected char %q", b), pos: start}
			return
		}
		lx.cur = token{kind: k, lit: string(b), pos: start}
	}
}

func (lx *lexer) ident() string {
	start := lx.off
	for lx.off < len(lx.src) && isIdentPart(lx.src[lx.off]) {
		lx.off++
	}
	return string(lx.src[start:lx.off])
}

func (lx *lexer) number() {
	start := lx.off
	lx.off++
	isFloat := false
	lx.digits()
	if lx.off < len(lx.src) && lx.src[lx.off] == '.' {
		isFloat = true
		lx.off++
		lx.digits()
	}
	if lx.off < len(lx.src) && (lx.src[lx.off] == 'e' || lx.src[lx.off] == 'E') {
		isFloat = true
		lx.off++
		if lx.off < len(lx.src) && (lx.src[lx.off] == '+' || lx.src[lx.off] == '-') {
			lx.off++
		}
		lx.digits()
	}
	lit := string(lx.src[start:lx.off])
	switch {
	case isFloat:
		lx.cur = token{kind: tokFloat, lit: lit, pos: start}
	case lx.off < len(lx.src) && lx.src[lx.off] == 'L':
		lx.off++
		lx.cur = token{kind: tokLong, lit: lit, pos: start}
	default:
		lx.cur = token{kind: tokInt, lit: lit, pos: start}
	}
}

func (lx *lexer) digits() {
	for lx.off < len(lx.src) && isDigit(lx.src[lx.off]) {
		lx.off++
	}
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.off < len(lx.src) {
		b := lx.src[lx.off]
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			lx.off++
			continue
		}
		// line comments: # or //
		if b == '#' || b == '/' && lx.hasPrefix("//") {
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.off++
			}
			continue
		}
		if lx.hasPrefix("/*") {
			lx.off += 2
			for lx.off < len(lx.src) && !lx.hasPrefix("*/") {
				lx.off++
			}
			lx.off = min(lx.off+2, len(lx.src))
			continue
		}
		break
	}
}

func (lx *lexer) hasPrefix(s string) bool {
	return len(lx.src)-lx.off >= len(s) && string(lx.src[lx.off:lx.off+len(s)]) == s
}

func (lx *lexer) peekIsDigit() bool {
	return lx.off+1 < len(lx.src) && isDigit(lx.src[lx.off+1])
}

func isIdentStart(b byte) bool { return b == '_' || 'a' <= b && b <= 'z' || 'A' <= b && b <= 'Z' }
func isIdentPart(b byte) bool  { return isIdentStart(b) || isDigit(b) }
func isDigit(b byte) bool      { return '0' <= b && b <= '9' }

// scanString returns the unquoted Go string literal at the start of src
// and its length in bytes.
func scanString(src []byte) (string, int, error) {
	i := 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == '"':
			i++
			s, err := strconv.Unquote(string(src[:i]))
			return s, i, err
		case c == '\\':
			i += 2
		case c == '\n':
			return "", 0, errors.New("newline in string")
		case c < utf8.RuneSelf:
			i++
		default:
			r, size := utf8.DecodeRune(src[i:])
			if r == utf8.RuneError && size <= 1 {
				return "", 0, errors.New("invalid utf-8")
			}
			i += size
		}
	}
	return "", 0, errors.New("unterminated string")
}
