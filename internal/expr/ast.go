// Package expr implements the embedded expression language: a lexer, a
// precedence-climbing parser producing context-free syntax trees, and an
// evaluator that resolves identifiers and built-in functions against a
// caller-supplied environment. Definitions are parsed once and the trees
// reused across invocations; only evaluation is per-call.
package expr

// Node is one node of a parsed expression tree. Trees are immutable after
// parsing and safe for concurrent evaluation.
type Node interface {
	// Pos returns the byte offset of the node in the source expression.
	Pos() int
}

// NumberLit is a numeric literal.
type NumberLit struct {
	pos int
	Val float64
}

// StringLit is a string literal, stored as interpolation segments. A
// literal without interpolation is a single text segment.
type StringLit struct {
	pos      int
	Segments []StringSegment
}

// StringSegment is either literal text or an embedded expression.
type StringSegment struct {
	Text string
	Expr Node // nil for text segments
}

// BoolLit is a boolean literal.
type BoolLit struct {
	pos int
	Val bool
}

// NullLit is the null literal.
type NullLit struct {
	pos int
}

// Ident is an identifier, resolved against the environment at evaluation
// time.
type Ident struct {
	pos  int
	Name string
}

// Unary is a prefix operation: ! or -.
type Unary struct {
	pos int
	Op  TokenType
	X   Node
}

// Binary is an infix operation. All binary operators are left-associative.
type Binary struct {
	pos int
	Op  TokenType
	L   Node
	R   Node
}

// Member is property access: x.key.
type Member struct {
	pos int
	X   Node
	Key string
}

// Index is bracket access: x[i]. The index expression evaluates to a
// number for lists or a string for maps.
type Index struct {
	pos int
	X   Node
	I   Node
}

// Call invokes a named built-in function.
type Call struct {
	pos  int
	Name string
	Args []Node
}

func (n *NumberLit) Pos() int { return n.pos }
func (n *StringLit) Pos() int { return n.pos }
func (n *BoolLit) Pos() int   { return n.pos }
func (n *NullLit) Pos() int   { return n.pos }
func (n *Ident) Pos() int     { return n.pos }
func (n *Unary) Pos() int     { return n.pos }
func (n *Binary) Pos() int    { return n.pos }
func (n *Member) Pos() int    { return n.pos }
func (n *Index) Pos() int     { return n.pos }
func (n *Call) Pos() int      { return n.pos }
