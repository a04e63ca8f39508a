package value

import (
	"fmt"
	"strconv"
	"strings"
)

// PathErrorKind classifies path resolution failures.
type PathErrorKind int

const (
	// PathNotFound: a key or index along the path does not exist.
	PathNotFound PathErrorKind = iota
	// PathTypeMismatch: the path descends into a non-container, or uses a
	// key on a list / an index on a map.
	PathTypeMismatch
)

// PathError is the typed failure of a path operation. Reads may translate
// PathNotFound into a null result (permissive read); writes never do.
type PathError struct {
	Kind PathErrorKind
	Path string
	At   string // the segment that failed
	Msg  string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q at %q: %s", e.Path, e.At, e.Msg)
}

func notFound(path, at, format string, args ...any) *PathError {
	return &PathError{Kind: PathNotFound, Path: path, At: at, Msg: fmt.Sprintf(format, args...)}
}

func typeMismatch(path, at, format string, args ...any) *PathError {
	return &PathError{Kind: PathTypeMismatch, Path: path, At: at, Msg: fmt.Sprintf(format, args...)}
}

// Segment is one step of a parsed path: a map key or a list index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path is a parsed dotted/bracketed address into a value tree, e.g.
// "balances.alice" or "items[0].price". The first segment is always a key
// (the root field name).
type Path struct {
	raw  string
	segs []Segment
}

// ParsePath parses a path string. Accepted forms per segment: ".ident",
// "[<int>]", and `["quoted key"]` for keys that are not identifiers.
func ParsePath(s string) (Path, error) {
	p := Path{raw: s}
	if s == "" {
		return p, fmt.Errorf("empty path")
	}

	i := 0
	readIdent := func() (string, error) {
		start := i
		for i < len(s) && isIdentChar(s[i], i > start) {
			i++
		}
		if i == start {
			return "", fmt.Errorf("path %q: expected identifier at offset %d", s, start)
		}
		return s[start:i], nil
	}

	root, err := readIdent()
	if err != nil {
		return p, err
	}
	p.segs = append(p.segs, Segment{Key: root})

	for i < len(s) {
		switch s[i] {
		case '.':
			i++
			key, err := readIdent()
			if err != nil {
				return p, err
			}
			p.segs = append(p.segs, Segment{Key: key})
		case '[':
			i++
			if i < len(s) && s[i] == '"' {
				i++
				start := i
				for i < len(s) && s[i] != '"' {
					i++
				}
				if i >= len(s) {
					return p, fmt.Errorf("path %q: unterminated quoted key", s)
				}
				key := s[start:i]
				i++ // closing quote
				if i >= len(s) || s[i] != ']' {
					return p, fmt.Errorf("path %q: expected ']' at offset %d", s, i)
				}
				i++
				p.segs = append(p.segs, Segment{Key: key})
				continue
			}
			start := i
			for i < len(s) && s[i] != ']' {
				i++
			}
			if i >= len(s) {
				return p, fmt.Errorf("path %q: unterminated index", s)
			}
			idx, err := strconv.Atoi(strings.TrimSpace(s[start:i]))
			if err != nil {
				return p, fmt.Errorf("path %q: invalid index %q", s, s[start:i])
			}
			i++ // ']'
			p.segs = append(p.segs, Segment{Index: idx, IsIndex: true})
		default:
			return p, fmt.Errorf("path %q: unexpected character %q at offset %d", s, s[i], i)
		}
	}

	return p, nil
}

func isIdentChar(c byte, notFirst bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return notFirst && c >= '0' && c <= '9'
}

// Root returns the first segment's key: the state field or variable name
// the path addresses.
func (p Path) Root() string {
	if len(p.segs) == 0 {
		return ""
	}
	return p.segs[0].Key
}

// Segments returns the parsed segments.
func (p Path) Segments() []Segment { return p.segs }

// Rest returns the segments after the root.
func (p Path) Rest() []Segment {
	if len(p.segs) <= 1 {
		return nil
	}
	return p.segs[1:]
}

// String returns the original path text.
func (p Path) String() string { return p.raw }

// Get resolves segments against a value tree. It returns a typed PathError
// when a segment does not resolve or descends into a non-container; the
// caller decides whether PathNotFound means null (reads) or failure
// (writes).
func Get(root Value, segs []Segment) (Value, error) {
	cur := root
	walked := ""
	for _, seg := range segs {
		walked = joinSeg(walked, seg)
		if seg.IsIndex {
			items, ok := cur.AsList()
			if !ok {
				return Null, typeMismatch(walked, seg.String(), "cannot index %s", cur.TypeName())
			}
			if seg.Index < 0 || seg.Index >= len(items) {
				return Null, notFound(walked, seg.String(), "index %d out of range (len %d)", seg.Index, len(items))
			}
			cur = items[seg.Index]
			continue
		}
		m, ok := cur.AsMap()
		if !ok {
			return Null, typeMismatch(walked, seg.Key, "cannot access key %q on %s", seg.Key, cur.TypeName())
		}
		e, ok := m[seg.Key]
		if !ok {
			return Null, notFound(walked, seg.Key, "key %q not found", seg.Key)
		}
		cur = e
	}
	return cur, nil
}

// Set writes v at the addressed position inside root, which must be a map
// or list container when segs is non-empty. Intermediate containers must
// already exist; only the final key of an existing map may be created
// (strict write). Set mutates root's containers in place, so callers
// operate on a working copy.
func Set(root Value, segs []Segment, v Value) error {
	if len(segs) == 0 {
		return fmt.Errorf("empty target path")
	}
	cur := root
	walked := ""
	for i, seg := range segs {
		last := i == len(segs)-1
		walked = joinSeg(walked, seg)
		if seg.IsIndex {
			items, ok := cur.AsList()
			if !ok {
				return typeMismatch(walked, seg.String(), "cannot index %s", cur.TypeName())
			}
			if seg.Index < 0 || seg.Index >= len(items) {
				return notFound(walked, seg.String(), "index %d out of range (len %d)", seg.Index, len(items))
			}
			if last {
				items[seg.Index] = v
				return nil
			}
			cur = items[seg.Index]
			continue
		}
		m, ok := cur.AsMap()
		if !ok {
			return typeMismatch(walked, seg.Key, "cannot access key %q on %s", seg.Key, cur.TypeName())
		}
		if last {
			m[seg.Key] = v
			return nil
		}
		e, ok := m[seg.Key]
		if !ok {
			return notFound(walked, seg.Key, "key %q not found", seg.Key)
		}
		cur = e
	}
	return nil
}

func joinSeg(prefix string, seg Segment) string {
	if seg.IsIndex {
		return prefix + seg.String()
	}
	if prefix == "" {
		return seg.Key
	}
	return prefix + "." + seg.Key
}
