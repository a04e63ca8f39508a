package expr

import (
	"strings"

	"github.com/rendis/applogic/pkg/schema"
)

// Interpolation delimiters for embedded expressions inside string
// literals: "balance is ${{ balance }}". The dollar sign can be escaped
// as \$ to produce a literal "${{".
const (
	InterpOpen  = "${{"
	InterpClose = "}}"
)

// Binary operator precedence, higher binds tighter. Unary operators and
// postfix access/call bind above all of these; all binary operators are
// left-associative.
var binaryPrec = map[TokenType]int{
	TokStar: 60, TokSlash: 60,
	TokPlus: 50, TokMinus: 50,
	TokLt: 40, TokGt: 40, TokLe: 40, TokGe: 40,
	TokEq: 30, TokNe: 30,
	TokAnd: 20,
	TokOr:  10,
}

// Parse turns an expression string into a syntax tree. The tree is
// independent of any evaluation context and safe to cache across
// invocations. Malformed input yields a PARSE_ERROR carrying the byte
// offset of the offending token.
func Parse(src string) (Node, *schema.AppError) {
	return parseWithBase(src, 0)
}

func parseWithBase(src string, base int) (Node, *schema.AppError) {
	if strings.TrimSpace(src) == "" {
		return nil, parseError(src, base, "empty expression")
	}
	p, err := newParser(src, base)
	if err != nil {
		return nil, err
	}
	node, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.cur.Type != TokEOF {
		return nil, parseError(src, p.cur.Pos, "unexpected %s after expression", p.cur.Type)
	}
	return node, nil
}

type parser struct {
	src  string
	lex  *lexer
	cur  Token
	peek Token
}

func newParser(src string, base int) (*parser, *schema.AppError) {
	p := &parser{src: src, lex: newLexer(src, base)}
	// Prime the two-token window.
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() *schema.AppError {
	p.cur = p.peek
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *parser) expect(t TokenType) (Token, *schema.AppError) {
	if p.cur.Type != t {
		return Token{}, parseError(p.src, p.cur.Pos, "expected %s, got %s", t, p.cur.Type)
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// parseExpr implements precedence climbing over the binary operator
// levels.
func (p *parser) parseExpr(minPrec int) (Node, *schema.AppError) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		prec, isBinary := binaryPrec[p.cur.Type]
		if !isBinary || prec < minPrec {
			return left, nil
		}
		op := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		// Left-associative: the right side climbs strictly higher.
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{pos: op.Pos, Op: op.Type, L: left, R: right}
	}
}

func (p *parser) parseUnary() (Node, *schema.AppError) {
	switch p.cur.Type {
	case TokBang, TokMinus:
		op := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{pos: op.Pos, Op: op.Type, X: x}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary followed by any chain of property access,
// index access, and (for bare identifiers) a function call.
func (p *parser) parsePostfix() (Node, *schema.AppError) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	// A call applies only to a bare function name; expressions are not
	// callable (no first-class functions).
	if id, ok := node.(*Ident); ok && p.cur.Type == TokLParen {
		call, err := p.parseCall(id)
		if err != nil {
			return nil, err
		}
		node = call
	}

	for {
		switch p.cur.Type {
		case TokDot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			key, err := p.expect(TokIdent)
			if err != nil {
				return nil, err
			}
			node = &Member{pos: key.Pos, X: node, Key: key.Text}
		case TokLBracket:
			open := p.cur
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRBracket); err != nil {
				return nil, err
			}
			node = &Index{pos: open.Pos, X: node, I: idx}
		default:
			return node, nil
		}
	}
}

func (p *parser) parseCall(id *Ident) (Node, *schema.AppError) {
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	call := &Call{pos: id.pos, Name: id.Name}
	if p.cur.Type == TokRParen {
		return call, p.advance()
	}
	for {
		arg, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		switch p.cur.Type {
		case TokComma:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case TokRParen:
			return call, p.advance()
		default:
			return nil, parseError(p.src, p.cur.Pos, "expected ',' or ')' in arguments of %s(), got %s", id.Name, p.cur.Type)
		}
	}
}

func (p *parser) parsePrimary() (Node, *schema.AppError) {
	tok := p.cur
	switch tok.Type {
	case TokNumber:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &NumberLit{pos: tok.Pos, Val: tok.Num}, nil
	case TokString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		segs, err := splitInterpolation(tok.Text, tok.Pos)
		if err != nil {
			return nil, err
		}
		return &StringLit{pos: tok.Pos, Segments: segs}, nil
	case TokTrue, TokFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &BoolLit{pos: tok.Pos, Val: tok.Type == TokTrue}, nil
	case TokNull:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &NullLit{pos: tok.Pos}, nil
	case TokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Ident{pos: tok.Pos, Name: tok.Text}, nil
	case TokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, parseError(p.src, tok.Pos, "unexpected %s", tok.Type)
}

// splitInterpolation splits raw (still escaped) string-literal content
// into literal text and embedded ${{...}} expression segments. Embedded
// expressions are parsed immediately so malformed interpolation fails at
// definition load, with offsets relative to the enclosing source.
func splitInterpolation(raw string, base int) ([]StringSegment, *schema.AppError) {
	var segs []StringSegment
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			segs = append(segs, StringSegment{Text: text.String()})
			text.Reset()
		}
	}

	i := 0
	for i < len(raw) {
		c := raw[i]
		if c == '\\' {
			if i+1 >= len(raw) {
				return nil, parseError(raw, base+i, "unterminated escape sequence")
			}
			esc := raw[i+1]
			switch esc {
			case '"', '\\', '$':
				text.WriteByte(esc)
			case 'n':
				text.WriteByte('\n')
			case 't':
				text.WriteByte('\t')
			case 'r':
				text.WriteByte('\r')
			default:
				return nil, parseError(raw, base+i, "unknown escape sequence \\%s", string(esc))
			}
			i += 2
			continue
		}
		if strings.HasPrefix(raw[i:], InterpOpen) {
			end := strings.Index(raw[i+len(InterpOpen):], InterpClose)
			if end == -1 {
				return nil, parseError(raw, base+i, "unclosed %s interpolation", InterpOpen)
			}
			innerStart := i + len(InterpOpen)
			inner := raw[innerStart : innerStart+end]
			if strings.Contains(inner, InterpOpen) {
				return nil, parseError(raw, base+i, "nested interpolation not allowed")
			}
			node, err := parseWithBase(inner, base+innerStart)
			if err != nil {
				return nil, err
			}
			flush()
			segs = append(segs, StringSegment{Expr: node})
			i = innerStart + end + len(InterpClose)
			continue
		}
		text.WriteByte(c)
		i++
	}
	flush()

	if segs == nil {
		segs = []StringSegment{{Text: ""}}
	}
	return segs, nil
}
