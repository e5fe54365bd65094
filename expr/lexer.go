package expr

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// lexer scans a rule string one byte at a time. Everything the grammar
// accepts outside of string literals is ASCII, so any other rune is an error.
type lexer struct {
	input string
	pos   int
}

// Tokenize splits a rule string into tokens. The returned slice always ends
// with a TokenEOF token. The first unrecognized character or unterminated
// string literal stops scanning with a *LexError.
func Tokenize(input string) ([]Token, error) {
	l := &lexer{input: input}
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) next() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Kind: TokenEOF, Pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]

	switch ch {
	case '(':
		l.pos++
		return Token{Kind: TokenLParen, Text: "(", Pos: start}, nil
	case ')':
		l.pos++
		return Token{Kind: TokenRParen, Text: ")", Pos: start}, nil
	case '=':
		l.pos++
		return Token{Kind: TokenEq, Text: "=", Pos: start}, nil
	case '>', '<':
		kind, text := TokenGt, ">"
		if ch == '<' {
			kind, text = TokenLt, "<"
		}
		if l.peek(1) == '=' {
			l.pos += 2
			if kind == TokenGt {
				return Token{Kind: TokenGe, Text: ">=", Pos: start}, nil
			}
			return Token{Kind: TokenLe, Text: "<=", Pos: start}, nil
		}
		l.pos++
		return Token{Kind: kind, Text: text, Pos: start}, nil
	case '!':
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Kind: TokenNe, Text: "!=", Pos: start}, nil
		}
		return Token{}, &LexError{Pos: start, Char: '!'}
	case '\'', '"':
		return l.readString(ch)
	}

	switch {
	case isLetter(ch) || ch == '_':
		return l.readWord(), nil
	case isDigit(ch) || ((ch == '+' || ch == '-' || ch == '.') && numberLength(l.input[l.pos:]) > 0):
		return l.readNumber()
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return Token{}, &LexError{Pos: start, Char: r}
}

// readString consumes a quoted literal. There are no escape sequences: the
// literal ends at the next occurrence of the opening quote.
func (l *lexer) readString(quote byte) (Token, error) {
	start := l.pos
	end := strings.IndexByte(l.input[start+1:], quote)
	if end < 0 {
		return Token{}, &LexError{Pos: start, Char: rune(quote), Unterminated: true}
	}
	text := l.input[start+1 : start+1+end]
	l.pos = start + end + 2
	return Token{Kind: TokenString, Text: text, Pos: start}, nil
}

func (l *lexer) readWord() Token {
	start := l.pos
	for l.pos < len(l.input) && (isLetter(l.input[l.pos]) || isDigit(l.input[l.pos]) || l.input[l.pos] == '_') {
		l.pos++
	}
	word := l.input[start:l.pos]
	tok := Token{Kind: TokenIdent, Text: word, Pos: start}

	switch strings.ToUpper(word) {
	case "AND":
		tok.Kind = TokenAnd
	case "OR":
		tok.Kind = TokenOr
	case "NOT":
		tok.Kind = TokenNot
	case "TRUE":
		tok.Kind = TokenBool
		tok.Bool = true
	case "FALSE":
		tok.Kind = TokenBool
	}
	return tok
}

func (l *lexer) readNumber() (Token, error) {
	start := l.pos
	n := numberLength(l.input[start:])
	text := l.input[start : start+n]
	l.pos += n

	val, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// Only reachable on overflow; the syntax was already checked.
		return Token{}, &LexError{Pos: start, Char: rune(text[0]), OutOfRange: true}
	}
	return Token{Kind: TokenNumber, Text: text, Pos: start, Num: val}, nil
}

// numberLength returns the length of the longest prefix of s that is a
// number literal: an optional sign, then digits with at most one decimal
// point and at least one digit. It returns 0 when s does not start with one.
func numberLength(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits, dot := 0, false
	for ; i < len(s); i++ {
		switch {
		case isDigit(s[i]):
			digits++
		case s[i] == '.' && !dot:
			dot = true
		default:
			if digits == 0 {
				return 0
			}
			return i
		}
	}
	if digits == 0 {
		return 0
	}
	return i
}

// isNumeric reports whether s, ignoring surrounding whitespace, is exactly
// one number literal as the tokenizer would read it.
func isNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || numberLength(s) != len(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
