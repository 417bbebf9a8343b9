// Package svd reads interrupt declarations out of CMSIS System View
// Description documents.
package svd

import (
	"maps"
	"slices"
)

// Interrupt is one <interrupt> entry of a peripheral.
type Interrupt struct {
	Number      int    `json:"number" yaml:"number"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Peripheral  string `json:"peripheral" yaml:"peripheral"`
}

// Table maps interrupt numbers to their declaration.
type Table map[int]Interrupt

// Numbers returns the interrupt numbers in ascending order.
func (t Table) Numbers() []int {
	return slices.Sorted(maps.Keys(t))
}

// Sorted returns the interrupts ordered by number.
func (t Table) Sorted() []Interrupt {
	out := make([]Interrupt, 0, len(t))
	for _, n := range t.Numbers() {
		out = append(out, t[n])
	}
	return out
}

// Overwrite records a declaration replaced by a later one with the same
// number.
type Overwrite struct {
	Number   int       `json:"number"`
	Previous Interrupt `json:"previous"`
	Current  Interrupt `json:"current"`
}

type Device struct {
	Name       string      `json:"name"`
	Interrupts Table       `json:"interrupts"`
	Overwrites []Overwrite `json:"overwrites,omitempty"`
}
