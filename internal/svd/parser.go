package svd

import (
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// CharsetReader converts a document declared in a non-UTF-8 encoding.
type CharsetReader func(label string, input io.Reader) (io.Reader, error)

// Parser extracts interrupt tables from SVD documents. Its configuration is
// fixed at construction, so one Parser may be shared by goroutines.
type Parser struct {
	entities         map[string]string
	charsetReader    CharsetReader
	strictDuplicates bool
}

type Option func(*Parser)

// WithEntities sets the named entities the decoder may expand in addition to
// the five predefined XML ones. External entities are never resolved.
func WithEntities(entities map[string]string) Option {
	return func(p *Parser) {
		p.entities = maps.Clone(entities)
	}
}

// WithCharsetReader replaces the default x/net charset decoder.
func WithCharsetReader(fn CharsetReader) Option {
	return func(p *Parser) {
		p.charsetReader = fn
	}
}

// WithStrictDuplicates makes a repeated interrupt number fail the parse with
// ErrDuplicateInterrupt instead of overwriting the earlier declaration.
func WithStrictDuplicates() Option {
	return func(p *Parser) {
		p.strictDuplicates = true
	}
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{charsetReader: charset.NewReaderLabel}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Fingerprint identifies the options that influence parse results.
func (p *Parser) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "strict=%t", p.strictDuplicates)
	for _, k := range slices.Sorted(maps.Keys(p.entities)) {
		fmt.Fprintf(&b, ";&%s=%q", k, p.entities[k])
	}
	return b.String()
}

// ParseFile opens path and parses it. The file is closed on every return.
func (p *Parser) ParseFile(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open svd %s: %w", path, err)
	}
	defer f.Close()
	dev, err := p.Parse(f)
	if err != nil {
		return nil, withPath(err, path)
	}
	return dev, nil
}

// ParseFS parses name from fsys.
func (p *Parser) ParseFS(fsys fs.FS, name string) (*Device, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open svd %s: %w", name, err)
	}
	defer f.Close()
	dev, err := p.Parse(f)
	if err != nil {
		return nil, withPath(err, name)
	}
	return dev, nil
}

// Parse reads one document. On error no device is returned.
func (p *Parser) Parse(r io.Reader) (*Device, error) {
	root, err := p.decodeTree(r)
	if err != nil {
		return nil, err
	}

	nameEl := root.find("name")
	if nameEl == nil {
		return nil, missing(root, "name")
	}
	dev := &Device{
		Name:       nameEl.text,
		Interrupts: Table{},
	}
	// Nested peripherals are visited twice (once through their ancestor),
	// so the innermost peripheral is the last one written. owner tracks which
	// element holds each number, so revisiting the same element only moves it
	// to the inner peripheral.
	owner := map[int]*element{}
	for _, pel := range root.iter("peripheral") {
		pname := pel.find("name")
		if pname == nil {
			return nil, missing(pel, "name")
		}
		for _, iel := range pel.iter("interrupt") {
			irq, err := parseInterrupt(iel, pname.text)
			if err != nil {
				return nil, err
			}
			if owner[irq.Number] == iel {
				dev.Interrupts[irq.Number] = irq
				continue
			}
			owner[irq.Number] = iel
			if prev, ok := dev.Interrupts[irq.Number]; ok {
				if p.strictDuplicates {
					return nil, fmt.Errorf("%w: %d (%s in %s, then %s in %s at line %d)",
						ErrDuplicateInterrupt, irq.Number, prev.Name, prev.Peripheral, irq.Name, irq.Peripheral, iel.line)
				}
				dev.Overwrites = append(dev.Overwrites, Overwrite{Number: irq.Number, Previous: prev, Current: irq})
			}
			dev.Interrupts[irq.Number] = irq
		}
	}
	return dev, nil
}

func parseInterrupt(el *element, peripheral string) (Interrupt, error) {
	nameEl := el.find("name")
	if nameEl == nil {
		return Interrupt{}, missing(el, "name")
	}
	valueEl := el.find("value")
	if valueEl == nil {
		return Interrupt{}, missing(el, "value")
	}
	raw := strings.TrimSpace(valueEl.text)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return Interrupt{}, &MalformedError{
			Line:    valueEl.line,
			Column:  valueEl.column,
			Element: "value",
			Reason:  fmt.Sprintf("interrupt %q: value %q is not an integer", nameEl.text, raw),
			Err:     err,
		}
	}
	if n < 0 {
		return Interrupt{}, &MalformedError{
			Line:    valueEl.line,
			Column:  valueEl.column,
			Element: "value",
			Reason:  fmt.Sprintf("interrupt %q: negative value %d", nameEl.text, n),
		}
	}
	var desc string
	if d := el.find("description"); d != nil {
		desc = strings.ReplaceAll(d.text, "\n", " ")
	}
	return Interrupt{
		Number:      n,
		Name:        nameEl.text,
		Description: desc,
		Peripheral:  peripheral,
	}, nil
}
