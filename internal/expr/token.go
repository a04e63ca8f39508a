package expr

import (
	"fmt"
	"strconv"

	"github.com/rendis/applogic/pkg/schema"
)

// TokenType enumerates the lexical tokens of the expression language.
type TokenType int

const (
	TokEOF TokenType = iota
	TokNumber
	TokString
	TokIdent
	TokTrue
	TokFalse
	TokNull

	TokPlus     // +
	TokMinus    // -
	TokStar     // *
	TokSlash    // /
	TokBang     // !
	TokLt       // <
	TokGt       // >
	TokLe       // <=
	TokGe       // >=
	TokEq       // ==
	TokNe       // !=
	TokAnd      // &&
	TokOr       // ||
	TokLParen   // (
	TokRParen   // )
	TokLBracket // [
	TokRBracket // ]
	TokDot      // .
	TokComma    // ,
)

var tokenNames = map[TokenType]string{
	TokEOF: "end of expression", TokNumber: "number", TokString: "string",
	TokIdent: "identifier", TokTrue: "true", TokFalse: "false", TokNull: "null",
	TokPlus: "+", TokMinus: "-", TokStar: "*", TokSlash: "/", TokBang: "!",
	TokLt: "<", TokGt: ">", TokLe: "<=", TokGe: ">=", TokEq: "==", TokNe: "!=",
	TokAnd: "&&", TokOr: "||", TokLParen: "(", TokRParen: ")",
	TokLBracket: "[", TokRBracket: "]", TokDot: ".", TokComma: ",",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is one lexical token with its byte offset in the source.
type Token struct {
	Type TokenType
	Pos  int
	Text string  // identifier text, or raw (still escaped) string content
	Num  float64 // numeric payload for TokNumber
}

// parseError builds a PARSE_ERROR carrying the offending byte offset.
func parseError(src string, pos int, format string, args ...any) *schema.AppError {
	return schema.NewErrorf(schema.ErrCodeParse, format, args...).
		WithDetails(map[string]any{"expression": src, "offset": pos})
}

// lexer scans an expression source string into tokens.
type lexer struct {
	src  string
	base int // offset of src within the enclosing source, for interpolation
	pos  int
}

func newLexer(src string, base int) *lexer {
	return &lexer{src: src, base: base}
}

func (l *lexer) errorf(pos int, format string, args ...any) *schema.AppError {
	return parseError(l.src, l.base+pos, format, args...)
}

// next scans and returns the next token.
func (l *lexer) next() (Token, *schema.AppError) {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.src) {
		return Token{Type: TokEOF, Pos: l.base + start}, nil
	}

	c := l.src[l.pos]
	switch {
	case isDigit(c):
		return l.scanNumber()
	case c == '"':
		return l.scanString()
	case isIdentStart(c):
		return l.scanIdent()
	}

	mk := func(t TokenType, width int) (Token, *schema.AppError) {
		l.pos += width
		return Token{Type: t, Pos: l.base + start, Text: l.src[start:l.pos]}, nil
	}

	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "<=":
		return mk(TokLe, 2)
	case ">=":
		return mk(TokGe, 2)
	case "==":
		return mk(TokEq, 2)
	case "!=":
		return mk(TokNe, 2)
	case "&&":
		return mk(TokAnd, 2)
	case "||":
		return mk(TokOr, 2)
	}

	switch c {
	case '+':
		return mk(TokPlus, 1)
	case '-':
		return mk(TokMinus, 1)
	case '*':
		return mk(TokStar, 1)
	case '/':
		return mk(TokSlash, 1)
	case '!':
		return mk(TokBang, 1)
	case '<':
		return mk(TokLt, 1)
	case '>':
		return mk(TokGt, 1)
	case '(':
		return mk(TokLParen, 1)
	case ')':
		return mk(TokRParen, 1)
	case '[':
		return mk(TokLBracket, 1)
	case ']':
		return mk(TokRBracket, 1)
	case '.':
		return mk(TokDot, 1)
	case ',':
		return mk(TokComma, 1)
	case '&', '|', '=':
		return Token{}, l.errorf(start, "unexpected character %q (did you mean %q?)", string(c), string(c)+string(c))
	}

	return Token{}, l.errorf(start, "unexpected character %q", string(c))
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) scanNumber() (Token, *schema.AppError) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' &&
		l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	text := l.src[start:l.pos]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, l.errorf(start, "invalid number literal %q", text)
	}
	return Token{Type: TokNumber, Pos: l.base + start, Text: text, Num: n}, nil
}

// scanString scans a double-quoted string and returns its raw content
// (escapes intact). Unescaping and interpolation splitting happen in the
// parser so embedded expression offsets stay accurate.
func (l *lexer) scanString() (Token, *schema.AppError) {
	start := l.pos
	l.pos++ // opening quote
	contentStart := l.pos
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			if l.pos+1 >= len(l.src) {
				return Token{}, l.errorf(l.pos, "unterminated escape sequence")
			}
			l.pos += 2
		case '"':
			content := l.src[contentStart:l.pos]
			l.pos++ // closing quote
			return Token{Type: TokString, Pos: l.base + contentStart, Text: content}, nil
		default:
			l.pos++
		}
	}
	return Token{}, l.errorf(start, "unterminated string literal")
}

func (l *lexer) scanIdent() (Token, *schema.AppError) {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	text := l.src[start:l.pos]
	tok := Token{Pos: l.base + start, Text: text}
	switch text {
	case "true":
		tok.Type = TokTrue
	case "false":
		tok.Type = TokFalse
	case "null":
		tok.Type = TokNull
	default:
		tok.Type = TokIdent
	}
	return tok, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
