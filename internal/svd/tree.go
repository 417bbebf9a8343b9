package svd

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// element is a minimal read-only view of one XML element.
type element struct {
	name     string
	text     string // character data before the first child element
	children []*element
	line     int
	column   int
}

// find returns the first direct child called name.
func (e *element) find(name string) *element {
	if e == nil {
		return nil
	}
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// iter returns e and all of its descendants called name, depth first in
// document order.
func (e *element) iter(name string) []*element {
	if e == nil {
		return nil
	}
	var out []*element
	var walk func(n *element)
	walk = func(n *element) {
		if n.name == name {
			out = append(out, n)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(e)
	return out
}

// decodeTree builds the element tree. Only the entities configured on the
// parser are expanded; DOCTYPE declarations are skipped and nothing outside
// the input stream is ever read.
func (p *Parser) decodeTree(r io.Reader) (*element, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	dec.Entity = p.entities
	dec.CharsetReader = p.charsetReader

	var (
		root  *element
		stack []*element
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, syntaxError(err)
		}
		line, col := dec.InputPos()
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, line: line, column: col}
			if len(stack) == 0 {
				if root != nil {
					return nil, &MalformedError{Line: line, Column: col, Element: el.name, Reason: "multiple root elements"}
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if strings.TrimSpace(string(t)) != "" {
					return nil, &MalformedError{Line: line, Column: col, Reason: "character data outside root element"}
				}
				continue
			}
			cur := stack[len(stack)-1]
			if len(cur.children) == 0 {
				cur.text += string(t)
			}
		}
	}
	if root == nil {
		return nil, &MalformedError{Reason: "no root element"}
	}
	return root, nil
}

func syntaxError(err error) error {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return &MalformedError{Line: se.Line, Reason: se.Msg, Err: err}
	}
	return fmt.Errorf("svd: read document: %w", err)
}
