package interrupts

import (
	"encoding"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"svdtools/internal/svd"
)

// Format selects how a report is written.
type Format int

const (
	formatInvalid Format = iota
	FormatText
	FormatJSON
	FormatYAML
)

var formatValueMap = map[Format]string{
	FormatText: "text",
	FormatJSON: "json",
	FormatYAML: "yaml",
}

func (f Format) String() string {
	v, ok := formatValueMap[f]
	if !ok {
		return fmt.Sprintf("invalid(%d)", f)
	}
	return v
}

var _ encoding.TextUnmarshaler = (*Format)(nil)

// UnmarshalText lets a Format be set from flags and environment values.
func (f *Format) UnmarshalText(rawtext []byte) error {
	text := string(rawtext)
	for k, v := range formatValueMap {
		if v == text {
			*f = k
			return nil
		}
	}
	return fmt.Errorf("unknown report format %q", text)
}

// Set implements flag.Value.
func (f *Format) Set(s string) error { return f.UnmarshalText([]byte(s)) }

type document struct {
	Device     string          `json:"device" yaml:"device"`
	Source     string          `json:"source,omitempty" yaml:"source,omitempty"`
	Interrupts []svd.Interrupt `json:"interrupts" yaml:"interrupts"`
	Gaps       *[]int          `json:"gaps,omitempty" yaml:"gaps,omitempty"`
}

// Write renders r for device in the given format. source is informational
// and only appears in structured formats.
func Write(w io.Writer, format Format, device, source string, r Report) error {
	switch format {
	case FormatText:
		if len(r.Interrupts) == 0 && !r.IncludeGaps {
			return nil
		}
		_, err := io.WriteString(w, r.String()+"\n")
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newDocument(device, source, r))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(device, source, r)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown report format %s", format)
	}
}

func newDocument(device, source string, r Report) document {
	doc := document{Device: device, Source: source, Interrupts: r.Interrupts}
	if doc.Interrupts == nil {
		doc.Interrupts = []svd.Interrupt{}
	}
	if r.IncludeGaps {
		gaps := r.Gaps
		if gaps == nil {
			gaps = []int{}
		}
		doc.Gaps = &gaps
	}
	return doc
}
