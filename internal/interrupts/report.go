// Package interrupts turns a device interrupt table into the ordered listing
// printed by `svdtools interrupts`, including unused vector numbers.
package interrupts

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"svdtools/internal/svd"
)

// Report is the ordered view of one interrupt table.
type Report struct {
	Interrupts  []svd.Interrupt `json:"interrupts" yaml:"interrupts"`
	Gaps        []int           `json:"gaps" yaml:"gaps"`
	IncludeGaps bool            `json:"-" yaml:"-"`
}

// Build orders table by number and computes the gaps below its highest entry.
func Build(table svd.Table, includeGaps bool) Report {
	r := Report{
		Interrupts:  table.Sorted(),
		IncludeGaps: includeGaps,
	}
	if includeGaps {
		r.Gaps = Gaps(table)
	}
	return r
}

// Gaps returns every number in [0, max] with no declaration, ascending.
func Gaps(table svd.Table) []int {
	missing := map[int]struct{}{}
	last := -1
	for _, n := range table.Numbers() {
		for v := last + 1; v < n; v++ {
			missing[v] = struct{}{}
		}
		last = n
	}
	return slices.Sorted(maps.Keys(missing))
}

// Line formats one interrupt as "{number} {name}: {description} (in {peripheral})".
func Line(irq svd.Interrupt) string {
	return fmt.Sprintf("%d %s: %s (in %s)", irq.Number, irq.Name, irq.Description, irq.Peripheral)
}

// GapLine formats the trailing "Gaps: " line.
func GapLine(gaps []int) string {
	parts := make([]string, len(gaps))
	for i, g := range gaps {
		parts[i] = strconv.Itoa(g)
	}
	return "Gaps: " + strings.Join(parts, ", ")
}

func (r Report) Lines() []string {
	lines := make([]string, 0, len(r.Interrupts)+1)
	for _, irq := range r.Interrupts {
		lines = append(lines, Line(irq))
	}
	if r.IncludeGaps {
		lines = append(lines, GapLine(r.Gaps))
	}
	return lines
}

// String joins Lines with newlines, without a trailing one.
func (r Report) String() string {
	return strings.Join(r.Lines(), "\n")
}
