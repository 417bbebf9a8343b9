package svd

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedDocument matches every *MalformedError.
	ErrMalformedDocument = errors.New("svd: malformed document")
	// ErrDuplicateInterrupt is only returned by parsers built with
	// WithStrictDuplicates.
	ErrDuplicateInterrupt = errors.New("svd: duplicate interrupt number")
)

// MalformedError reports a document that is not well formed or lacks a
// required element. Line and Column are 1-based and zero when unknown.
type MalformedError struct {
	Path    string
	Line    int
	Column  int
	Element string
	Reason  string
	Err     error
}

func (e *MalformedError) Error() string {
	var b strings.Builder
	b.WriteString(ErrMalformedDocument.Error())
	if e.Path != "" || e.Line > 0 {
		b.WriteString(": ")
		b.WriteString(e.location())
	}
	if e.Element != "" {
		fmt.Fprintf(&b, ": <%s>", e.Element)
	}
	switch {
	case e.Reason != "":
		b.WriteString(": ")
		b.WriteString(e.Reason)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *MalformedError) location() string {
	loc := e.Path
	if e.Line > 0 {
		if loc == "" {
			loc = "line"
		}
		loc += fmt.Sprintf(":%d", e.Line)
		if e.Column > 0 {
			loc += fmt.Sprintf(":%d", e.Column)
		}
	}
	return loc
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformedDocument }

func (e *MalformedError) Unwrap() error { return e.Err }

// withPath stamps path on a *MalformedError; other errors pass through.
func withPath(err error, path string) error {
	var me *MalformedError
	if errors.As(err, &me) && me.Path == "" {
		me.Path = path
	}
	return err
}

func missing(parent *element, child string) error {
	return &MalformedError{
		Line:    parent.line,
		Column:  parent.column,
		Element: parent.name,
		Reason:  fmt.Sprintf("missing required <%s>", child),
	}
}
