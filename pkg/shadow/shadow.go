// Package shadow implements the shadow state (spec.md §3/§4.2): a taint
// word per register and a taint byte per memory cell, mirroring the shape
// of pkg/machine.State, plus the taint tracker primitives (OR/replace/add)
// that every policy handler is built from.
package shadow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Terminator-Canaries/tainty-thing/pkg/machine"
	"github.com/Terminator-Canaries/tainty-thing/pkg/operand"
)

// Mask is a bitmask over taint labels. Zero means clean.
type Mask int

// The taint label flags. One-hex-digit spacing is preserved deliberately
// (spec.md §6): it keeps printed masks human-readable bit by bit.
const (
	Loc      Mask = 0x1
	UID      Mask = 0x10
	Name     Mask = 0x100
	Face     Mask = 0x1000
	Password Mask = 0x10000
	Other    Mask = 0x100000
)

var labelNames = []struct {
	mask Mask
	name string
}{
	{Loc, "TAINT_LOC"},
	{UID, "TAINT_UID"},
	{Name, "TAINT_NAME"},
	{Face, "TAINT_FACE"},
	{Password, "TAINT_PASSWORD"},
	{Other, "TAINT_OTHER"},
}

// String renders a mask as "CLEAN" or a "|"-joined list of set labels,
// following original_source/taint.py's print_taint.
func (m Mask) String() string {
	if m == 0 {
		return "CLEAN"
	}
	var parts []string
	for _, l := range labelNames {
		if m&l.mask != 0 {
			parts = append(parts, l.name)
		}
	}
	return strings.Join(parts, "|")
}

// OR combines two taint masks. Commutative, associative, OR(t, 0) == t.
func OR(a, b Mask) Mask { return a | b }

// ErrInvalidRegister and ErrOutOfBounds mirror pkg/machine's error kinds,
// since Tracker bounds-checks registers and memory identically.
var (
	ErrInvalidRegister = errors.New("shadow: invalid register")
	ErrOutOfBounds     = errors.New("shadow: address out of bounds")
)

// State is the shadow state: one taint word per register, one taint byte
// per memory cell.
type State struct {
	Regs [machine.NumRegisters]Mask
	Mem  []Mask
}

// New builds a zeroed (all-clean) shadow state sized to match a concrete
// Machine State of the given memory size.
func New(memSize int) *State {
	return &State{Mem: make([]Mask, memSize)}
}

// RegTaint reads a register's taint mask.
func (s *State) RegTaint(r interface{}) (Mask, error) {
	idx, err := machine.ResolveRegister(r)
	if err != nil {
		return 0, fmt.Errorf("%w", ErrInvalidRegister)
	}
	return s.Regs[idx], nil
}

// ReplaceRegTaint overwrites a register's taint mask. Writes to x0 are
// dropped, mirroring machine.State.SetReg: x0 stays clean the same way
// it stays zero.
func (s *State) ReplaceRegTaint(r interface{}, t Mask) error {
	idx, err := machine.ResolveRegister(r)
	if err != nil {
		return fmt.Errorf("%w", ErrInvalidRegister)
	}
	if idx == 0 {
		return nil
	}
	s.Regs[idx] = t
	return nil
}

// AddRegTaint bitwise-ORs t into a register's taint mask. Writes to x0
// are dropped; see ReplaceRegTaint.
func (s *State) AddRegTaint(r interface{}, t Mask) error {
	idx, err := machine.ResolveRegister(r)
	if err != nil {
		return fmt.Errorf("%w", ErrInvalidRegister)
	}
	if idx == 0 {
		return nil
	}
	s.Regs[idx] = OR(s.Regs[idx], t)
	return nil
}

// MemTaint reads a memory cell's taint mask.
func (s *State) MemTaint(addr int) (Mask, error) {
	if addr < 0 || addr >= len(s.Mem) {
		return 0, fmt.Errorf("%w: address %d", ErrOutOfBounds, addr)
	}
	return s.Mem[addr], nil
}

// ReplaceMemTaint overwrites a memory cell's taint mask.
func (s *State) ReplaceMemTaint(addr int, t Mask) error {
	if addr < 0 || addr >= len(s.Mem) {
		return fmt.Errorf("%w: address %d", ErrOutOfBounds, addr)
	}
	s.Mem[addr] = t
	return nil
}

// AddMemTaint bitwise-ORs t into a memory cell's taint mask.
func (s *State) AddMemTaint(addr int, t Mask) error {
	if addr < 0 || addr >= len(s.Mem) {
		return fmt.Errorf("%w: address %d", ErrOutOfBounds, addr)
	}
	s.Mem[addr] = OR(s.Mem[addr], t)
	return nil
}

// PercentageTaintedRegisters is the fraction of registers with a non-zero
// taint mask, per original_source/taint.py:percentage_tainted_registers.
func (s *State) PercentageTaintedRegisters() float64 {
	n := 0
	for _, t := range s.Regs {
		if t != 0 {
			n++
		}
	}
	return float64(n) / float64(len(s.Regs))
}

// PercentageTaintedMemory is the fraction of memory cells with a non-zero
// taint mask.
func (s *State) PercentageTaintedMemory() float64 {
	if len(s.Mem) == 0 {
		return 0
	}
	n := 0
	for _, t := range s.Mem {
		if t != 0 {
			n++
		}
	}
	return float64(n) / float64(len(s.Mem))
}

// Tracker is the taint tracker handed to every policy handler: a shadow
// state coupled with the pending return-value taint of an in-flight
// simulated external call (spec.md §4.2/§4.5).
type Tracker struct {
	Shadow      *State
	TaintSource Mask
}

// NewTracker builds a Tracker over the given shadow state.
func NewTracker(shadow *State) *Tracker {
	return &Tracker{Shadow: shadow}
}

// OperandTaint mirrors operand.Value, but reads the shadow state: a
// Constant is always clean, a Label has no taint (callers must not ask).
func (t *Tracker) OperandTaint(s *machine.State, op operand.Operand) (Mask, error) {
	switch o := op.(type) {
	case operand.Register:
		return t.Shadow.RegTaint(o.Idx)
	case operand.Memory:
		addr, err := o.Address(s)
		if err != nil {
			return 0, err
		}
		return t.Shadow.MemTaint(addr)
	case operand.Constant:
		return 0, nil
	default:
		return 0, fmt.Errorf("shadow: operand %v has no taint", op)
	}
}

// ReplaceOperandTaint mirrors operand.Write over the shadow state.
func (t *Tracker) ReplaceOperandTaint(s *machine.State, op operand.Operand, taint Mask) error {
	switch o := op.(type) {
	case operand.Register:
		return t.Shadow.ReplaceRegTaint(o.Idx, taint)
	case operand.Memory:
		addr, err := o.Address(s)
		if err != nil {
			return err
		}
		return t.Shadow.ReplaceMemTaint(addr, taint)
	default:
		return fmt.Errorf("shadow: cannot write taint to operand %v", op)
	}
}
