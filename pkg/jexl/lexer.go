package jexl

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenString
	tokenNumber
	tokenIdentifier
	tokenOperator
	tokenPunct
)

type token struct {
	kind  tokenKind
	text  string
	value any
	pos   int
}

// Longest operators first so that `//` wins over `/` and `||` over `|`.
var operators = []string{"==", "!=", "<=", ">=", "&&", "||", "//", "+", "-", "*", "/", "%", "^", "<", ">", "!"}

const punctuation = ".[]{}(),:?|"

type lexer struct {
	input string
	pos   int
}

func tokenize(input string) ([]token, error) {
	lx := &lexer{input: input}

	var tokens []token

	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}

		tokens = append(tokens, tok)

		if tok.kind == tokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) errorf(pos int, msg string) error {
	return &ExpressionSyntaxError{Expression: l.input, Position: pos, Message: msg}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}

		l.pos += size
	}

	if l.pos >= len(l.input) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c == '\'' || c == '"':
		return l.lexString(c)
	case c >= '0' && c <= '9':
		return l.lexNumber()
	case c == '_' || c == '$' || c >= 0x80 || unicode.IsLetter(rune(c)):
		return l.lexIdentifier()
	}

	for _, op := range operators {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			return token{kind: tokenOperator, text: op, pos: start}, nil
		}
	}

	if strings.IndexByte(punctuation, c) >= 0 {
		l.pos++
		return token{kind: tokenPunct, text: string(c), pos: start}, nil
	}

	return token{}, l.errorf(start, "unexpected character "+strconv.QuoteRune(rune(c)))
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++

	var sb strings.Builder

	for l.pos < len(l.input) {
		c := l.input[l.pos]

		switch c {
		case quote:
			l.pos++
			return token{kind: tokenString, text: l.input[start:l.pos], value: sb.String(), pos: start}, nil
		case '\\':
			if l.pos+1 >= len(l.input) {
				return token{}, l.errorf(l.pos, "unterminated escape sequence")
			}

			l.pos++
			switch esc := l.input[l.pos]; esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(esc)
			}
			l.pos++
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}

	return token{}, l.errorf(start, "unterminated string literal")
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos

	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}

	if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && isDigit(l.input[l.pos+1]) {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}

	text := l.input[start:l.pos]

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, l.errorf(start, "invalid number "+text)
	}

	return token{kind: tokenNumber, text: text, value: value, pos: start}, nil
}

func (l *lexer) lexIdentifier() (token, error) {
	start := l.pos

	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if r != '_' && r != '$' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}

		l.pos += size
	}

	text := l.input[start:l.pos]

	switch text {
	case "true":
		return token{kind: tokenIdentifier, text: text, value: true, pos: start}, nil
	case "false":
		return token{kind: tokenIdentifier, text: text, value: false, pos: start}, nil
	case "in", "intersects":
		return token{kind: tokenOperator, text: text, pos: start}, nil
	}

	return token{kind: tokenIdentifier, text: text, pos: start}, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
