// Package tester holds fixtures shared by package tests.
package tester

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// IRQ describes an <interrupt> element. A nil Description omits the element.
type IRQ struct {
	Name        string
	Value       string
	Description *string
}

// Peripheral describes a <peripheral> element.
type Peripheral struct {
	Name       string
	Interrupts []IRQ
}

// Desc returns a pointer for IRQ.Description.
func Desc(s string) *string { return &s }

// Interrupt builds an IRQ with a numeric value and a description.
func Interrupt(value int, name, desc string) IRQ {
	return IRQ{Name: name, Value: fmt.Sprint(value), Description: Desc(desc)}
}

// SVD renders a minimal device document.
func SVD(device string, peripherals ...Peripheral) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	b.WriteString("<device schemaVersion=\"1.1\">\n")
	fmt.Fprintf(&b, "  <name>%s</name>\n", device)
	b.WriteString("  <peripherals>\n")
	for _, p := range peripherals {
		b.WriteString("    <peripheral>\n")
		fmt.Fprintf(&b, "      <name>%s</name>\n", p.Name)
		for _, irq := range p.Interrupts {
			b.WriteString("      <interrupt>\n")
			fmt.Fprintf(&b, "        <name>%s</name>\n", irq.Name)
			if irq.Description != nil {
				fmt.Fprintf(&b, "        <description>%s</description>\n", *irq.Description)
			}
			fmt.Fprintf(&b, "        <value>%s</value>\n", irq.Value)
			b.WriteString("      </interrupt>\n")
		}
		b.WriteString("    </peripheral>\n")
	}
	b.WriteString("  </peripherals>\n")
	b.WriteString("</device>\n")
	return b.String()
}

// TimerADC is the three-interrupt device used across packages: numbers 0, 2
// and 5 leave gaps at 1, 3 and 4.
func TimerADC() string {
	return SVD("STM32X",
		Peripheral{Name: "Timer", Interrupts: []IRQ{
			Interrupt(0, "Timer0", "Timer 0 global"),
			Interrupt(2, "Timer2", "Timer 2 global"),
		}},
		Peripheral{Name: "ADC", Interrupts: []IRQ{
			Interrupt(5, "ADC", "ADC conversion"),
		}},
	)
}

// Write creates root/rel with content and returns its path.
func Write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}
