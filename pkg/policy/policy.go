// Package policy implements the taint policy registry of spec.md §4.7: an
// explicit, per-Interpreter mapping from opcode to a handler that mutates
// shadow state before the instruction executes concretely.
//
// spec.md §9 flags the original implementation's module-global policy
// dict as something to re-architect into "an explicit Policy value held
// by the Interpreter; constructors inject it" — that is exactly what
// Policy is: a plain struct, never a package-level registry.
package policy

import (
	"errors"
	"fmt"

	"github.com/Terminator-Canaries/tainty-thing/pkg/machine"
	"github.com/Terminator-Canaries/tainty-thing/pkg/operand"
	"github.com/Terminator-Canaries/tainty-thing/pkg/shadow"
)

// ErrUnsupportedTaintOpcode indicates an opcode not in the policy table.
var ErrUnsupportedTaintOpcode = errors.New("policy: unsupported taint opcode")

// Handler mutates shadow state for one instruction, reading source-operand
// taint before the executor performs the concrete write (spec.md §4.6:
// "Policy runs before concrete execution so destination taint reads the
// source values' taint").
type Handler func(tracker *shadow.Tracker, state *machine.State, ops []operand.Operand) error

// Policy is a finite opcode -> Handler mapping.
type Policy struct {
	handlers map[string]Handler
}

// New builds an empty Policy. Register adds handlers to it.
func New() *Policy {
	return &Policy{handlers: make(map[string]Handler)}
}

// Register adds (or replaces) the handler for opcode.
func (p *Policy) Register(opcode string, h Handler) {
	p.handlers[opcode] = h
}

// Wrap replaces opcode's handler with one that calls the current handler
// exactly once, surrounded by before/after hooks. This is how
// instruction-range tracing (spec.md §4.7: "Handlers may be wrapped...
// wrappers must call the inner handler exactly once") is implemented,
// generalizing original_source/policy.py's pc_wrapper.
func (p *Policy) Wrap(opcode string, before, after func(tracker *shadow.Tracker, state *machine.State, ops []operand.Operand)) error {
	inner, ok := p.handlers[opcode]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedTaintOpcode, opcode)
	}
	p.handlers[opcode] = func(tracker *shadow.Tracker, state *machine.State, ops []operand.Operand) error {
		if before != nil {
			before(tracker, state, ops)
		}
		err := inner(tracker, state, ops)
		if after != nil {
			after(tracker, state, ops)
		}
		return err
	}
	return nil
}

// Apply runs opcode's handler, or returns ErrUnsupportedTaintOpcode.
func (p *Policy) Apply(tracker *shadow.Tracker, state *machine.State, opcode string, ops []operand.Operand) error {
	h, ok := p.handlers[opcode]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedTaintOpcode, opcode)
	}
	return h(tracker, state, ops)
}

// Default builds the policy required by spec.md §4.7, with the given
// external-function table (spec.md §6's minimum table, or a caller
// extension of it) wired into the call/ret handlers.
func Default(functions map[string]shadow.Mask) *Policy {
	p := New()

	replaceOR := func(tracker *shadow.Tracker, state *machine.State, ops []operand.Operand) error {
		if len(ops) < 3 {
			return fmt.Errorf("policy: %w", isaInsufficientOperands)
		}
		t1, err := tracker.OperandTaint(state, ops[1])
		if err != nil {
			return err
		}
		t2, err := tracker.OperandTaint(state, ops[2])
		if err != nil {
			return err
		}
		return tracker.ReplaceOperandTaint(state, ops[0], shadow.OR(t1, t2))
	}
	for _, op := range []string{"addi", "add", "subi", "sub", "andi", "and", "xori", "xor", "srli", "srl", "slli", "sll"} {
		p.Register(op, replaceOR)
	}

	copyTaint := func(tracker *shadow.Tracker, state *machine.State, ops []operand.Operand) error {
		if len(ops) < 2 {
			return fmt.Errorf("policy: %w", isaInsufficientOperands)
		}
		t1, err := tracker.OperandTaint(state, ops[1])
		if err != nil {
			return err
		}
		return tracker.ReplaceOperandTaint(state, ops[0], t1)
	}
	p.Register("lui", copyTaint)
	p.Register("mv", copyTaint)
	p.Register("lw", copyTaint)

	p.Register("sw", func(tracker *shadow.Tracker, state *machine.State, ops []operand.Operand) error {
		if len(ops) < 2 {
			return fmt.Errorf("policy: %w", isaInsufficientOperands)
		}
		t0, err := tracker.OperandTaint(state, ops[0])
		if err != nil {
			return err
		}
		return tracker.ReplaceOperandTaint(state, ops[1], t0)
	})

	p.Register("call", func(tracker *shadow.Tracker, state *machine.State, ops []operand.Operand) error {
		if len(ops) < 1 {
			return fmt.Errorf("policy: %w", isaInsufficientOperands)
		}
		fn, ok := ops[0].(operand.CallFunction)
		if !ok {
			return nil // call to an ordinary label carries no taint effect
		}
		taint, known := functions[fn.Name]
		if !known {
			return nil
		}
		// A simulated call never runs a body, so there is no later "ret"
		// step to consume taint_source (spec.md §4.5): the call site is
		// itself the whole call/return cycle, so a0 is tainted here.
		tracker.TaintSource = taint
		if err := tracker.Shadow.ReplaceRegTaint("a0", taint); err != nil {
			return err
		}
		tracker.TaintSource = 0
		return nil
	})

	p.Register("ret", func(tracker *shadow.Tracker, state *machine.State, ops []operand.Operand) error {
		if tracker.TaintSource != 0 {
			if err := tracker.Shadow.ReplaceRegTaint("a0", tracker.TaintSource); err != nil {
				return err
			}
		}
		tracker.TaintSource = 0
		return nil
	})

	noop := func(tracker *shadow.Tracker, state *machine.State, ops []operand.Operand) error { return nil }
	for _, op := range []string{"beq", "bne", "blt", "bnez", "j", "jalr"} {
		p.Register(op, noop)
	}

	return p
}

// isaInsufficientOperands mirrors isa.ErrInsufficientOperands without
// importing pkg/isa, avoiding a needless cross-package dependency for a
// single sentinel; both errors carry the same spec.md §7 meaning.
var isaInsufficientOperands = errors.New("insufficient operands")
