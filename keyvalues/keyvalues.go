// Package keyvalues parses Valve's KeyValues1 text format, the configuration
// syntax used by gameinfo.txt, soundscripts and most other Source engine
// text assets.
//
// The supported syntax is quoted and unquoted tokens, nested {} blocks,
// // line comments and backslash escapes inside quoted strings. Keys are
// matched case-insensitively, like the engine does.
package keyvalues

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// KeyValues is a single node: either a leaf with a Value, or a block with
// children. The root node returned by Parse is a nameless block holding the
// top-level nodes.
type KeyValues struct {
	Name  string
	Value string

	children    []*KeyValues
	hasChildren bool
}

// ParseError reports a syntax error with its position. File is the name
// passed to Parse.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// HasChildren reports whether the node is a block. Leaf nodes hold a Value
// instead; an empty block is still a block.
func (kv *KeyValues) HasChildren() bool {
	return kv.hasChildren
}

// Children returns the node's children in document order.
func (kv *KeyValues) Children() []*KeyValues {
	return kv.children
}

// Find returns the first child with the given name, or nil. Name comparison
// is case-insensitive.
func (kv *KeyValues) Find(name string) *KeyValues {
	for _, c := range kv.children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// FindAll returns every child with the given name, in document order.
func (kv *KeyValues) FindAll(name string) []*KeyValues {
	var out []*KeyValues
	for _, c := range kv.children {
		if strings.EqualFold(c.Name, name) {
			out = append(out, c)
		}
	}
	return out
}

// Str returns the value of the named child, or def if it is absent or a
// block.
func (kv *KeyValues) Str(name, def string) string {
	c := kv.Find(name)
	if c == nil || c.hasChildren {
		return def
	}
	return c.Value
}

// Int returns the named child's value as an integer, or def.
func (kv *KeyValues) Int(name string, def int) int {
	c := kv.Find(name)
	if c == nil || c.hasChildren {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(c.Value))
	if err != nil {
		return def
	}
	return n
}

// Bool returns the named child's value as a boolean, or def. "0", "false"
// and "no" are false; "1", "true" and "yes" are true.
func (kv *KeyValues) Bool(name string, def bool) bool {
	c := kv.Find(name)
	if c == nil || c.hasChildren {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(c.Value)) {
	case "0", "false", "no":
		return false
	case "1", "true", "yes":
		return true
	}
	return def
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokOpen
	tokClose
	tokString
)

type parser struct {
	r    *bufio.Reader
	file string
	line int
}

// Parse reads a KeyValues1 document. The name is used in error messages
// only, typically the source path of the data.
func Parse(r io.Reader, name string) (*KeyValues, error) {
	p := &parser{r: bufio.NewReader(r), file: name, line: 1}
	p.skipBOM()

	root := &KeyValues{hasChildren: true}
	if err := p.parseInto(root, true); err != nil {
		return nil, err
	}
	return root, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{File: p.file, Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipBOM() {
	bom := []byte{0xef, 0xbb, 0xbf}
	head, err := p.r.Peek(3)
	if err == nil && head[0] == bom[0] && head[1] == bom[1] && head[2] == bom[2] {
		p.r.Discard(3)
	}
}

func (p *parser) parseInto(parent *KeyValues, top bool) error {
	for {
		kind, key, err := p.next()
		if err != nil {
			return err
		}
		switch kind {
		case tokEOF:
			if !top {
				return p.errorf("unexpected end of file inside block %q", parent.Name)
			}
			return nil
		case tokClose:
			if top {
				return p.errorf("unmatched }")
			}
			return nil
		case tokOpen:
			return p.errorf("block has no key")
		}

		kind, value, err := p.next()
		if err != nil {
			return err
		}
		switch kind {
		case tokOpen:
			child := &KeyValues{Name: key, hasChildren: true}
			if err := p.parseInto(child, false); err != nil {
				return err
			}
			parent.children = append(parent.children, child)
		case tokString:
			parent.children = append(parent.children, &KeyValues{Name: key, Value: value})
		case tokClose, tokEOF:
			return p.errorf("key %q has no value", key)
		}
	}
}

func (p *parser) next() (tokenKind, string, error) {
	for {
		c, _, err := p.r.ReadRune()
		if err == io.EOF {
			return tokEOF, "", nil
		}
		if err != nil {
			return tokEOF, "", err
		}

		switch {
		case c == '\n':
			p.line++
		case c == ' ' || c == '\t' || c == '\r':
		case c == '{':
			return tokOpen, "", nil
		case c == '}':
			return tokClose, "", nil
		case c == '"':
			s, err := p.scanQuoted()
			return tokString, s, err
		case c == '/':
			next, _, err := p.r.ReadRune()
			if err == nil && next == '/' {
				if err := p.skipLine(); err != nil {
					return tokEOF, "", err
				}
				continue
			}
			if err == nil {
				p.r.UnreadRune()
			}
			s, err := p.scanBare(c)
			return tokString, s, err
		default:
			s, err := p.scanBare(c)
			return tokString, s, err
		}
	}
}

func (p *parser) skipLine() error {
	_, err := p.r.ReadString('\n')
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	p.line++
	return nil
}

// scanQuoted consumes a quoted string after the opening quote, handling the
// standard escapes. Newlines are allowed inside and counted.
func (p *parser) scanQuoted() (string, error) {
	var sb strings.Builder
	for {
		c, _, err := p.r.ReadRune()
		if err != nil {
			return "", p.errorf("unterminated string")
		}
		switch c {
		case '"':
			return sb.String(), nil
		case '\n':
			p.line++
			sb.WriteRune(c)
		case '\\':
			esc, _, err := p.r.ReadRune()
			if err != nil {
				return "", p.errorf("unterminated string")
			}
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				// Not a recognized escape, keep it verbatim.
				sb.WriteRune('\\')
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(c)
		}
	}
}

// scanBare consumes an unquoted token starting with first. It ends at
// whitespace, braces or a quote.
func (p *parser) scanBare(first rune) (string, error) {
	var sb strings.Builder
	sb.WriteRune(first)
	for {
		c, _, err := p.r.ReadRune()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '{' || c == '}' || c == '"' {
			p.r.UnreadRune()
			return sb.String(), nil
		}
		sb.WriteRune(c)
	}
}
