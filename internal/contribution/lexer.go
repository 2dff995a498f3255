package contribution

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenKind classifies a lexical token of a when-expression.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokRegex
	tokTrue
	tokFalse
	tokAnd
	tokOr
	tokNot
	tokEq
	tokNeq
	tokMatch
	tokIn
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokRegex:
		return "regular expression"
	case tokTrue, tokFalse:
		return "boolean"
	case tokAnd:
		return "&&"
	case tokOr:
		return "||"
	case tokNot:
		return "!"
	case tokEq:
		return "=="
	case tokNeq:
		return "!="
	case tokMatch:
		return "=~"
	case tokIn:
		return "in"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	default:
		return "unknown"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer splits a when-expression into tokens.
type lexer struct {
	src string
	pos int

	// regexOK is set when a regex literal may start at the current
	// position, which is only right after =~.
	regexOK bool
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
		l.regexOK = tok.kind == tokMatch
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}

	switch {
	case two == "&&":
		l.pos += 2
		return token{kind: tokAnd, text: two, pos: start}, nil
	case two == "||":
		l.pos += 2
		return token{kind: tokOr, text: two, pos: start}, nil
	case two == "==":
		l.pos += 2
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			l.pos++ // accept ===
		}
		return token{kind: tokEq, text: "==", pos: start}, nil
	case two == "!=":
		l.pos += 2
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			l.pos++ // accept !==
		}
		return token{kind: tokNeq, text: "!=", pos: start}, nil
	case two == "=~":
		l.pos += 2
		return token{kind: tokMatch, text: two, pos: start}, nil
	case c == '!':
		l.pos++
		return token{kind: tokNot, text: "!", pos: start}, nil
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == '\'' || c == '"':
		return l.quoted(c)
	case c == '/' && l.regexOK:
		return l.regex()
	case c == '-' || (c >= '0' && c <= '9'):
		return l.number()
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	if isIdentStart(r) {
		return l.ident(), nil
	}
	return token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", r)}
}

func (l *lexer) quoted(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\' && l.pos+1 < len(l.src):
			b.WriteByte(l.src[l.pos+1])
			l.pos += 2
		case c == quote:
			l.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, &SyntaxError{Pos: start, Msg: "unterminated string"}
}

// regex reads /pattern/flags. Only the i flag is meaningful.
func (l *lexer) regex() (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\' && l.pos+1 < len(l.src):
			if l.src[l.pos+1] != '/' {
				b.WriteByte(c)
			}
			b.WriteByte(l.src[l.pos+1])
			l.pos += 2
		case c == '/':
			l.pos++
			flags := ""
			for l.pos < len(l.src) && isIdentByte(l.src[l.pos]) {
				flags += string(l.src[l.pos])
				l.pos++
			}
			pattern := b.String()
			if strings.Contains(flags, "i") {
				pattern = "(?i)" + pattern
			}
			return token{kind: tokRegex, text: pattern, pos: start}, nil
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, &SyntaxError{Pos: start, Msg: "unterminated regular expression"}
}

func (l *lexer) number() (token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	digits := 0
	for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
		l.pos++
		digits++
	}
	if digits == 0 {
		return token{}, &SyntaxError{Pos: start, Msg: "expected digits after '-'"}
	}
	return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil
}

func (l *lexer) ident() token {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}
	text := l.src[start:l.pos]
	switch text {
	case "true":
		return token{kind: tokTrue, text: text, pos: start}
	case "false":
		return token{kind: tokFalse, text: text, pos: start}
	case "in":
		return token{kind: tokIn, text: text, pos: start}
	}
	return token{kind: tokIdent, text: text, pos: start}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '$'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == ':' || r == '/'
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
