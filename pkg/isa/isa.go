// Package isa implements the instruction executor of spec.md §4.4: the
// decoded RV32I subset's concrete semantics, and the control token each
// instruction hands back to the interpreter loop.
package isa

import (
	"errors"
	"fmt"

	"github.com/Terminator-Canaries/tainty-thing/pkg/machine"
	"github.com/Terminator-Canaries/tainty-thing/pkg/operand"
)

// The following errors may be returned.
var (
	// ErrUnsupportedInstruction indicates an opcode not in the executor's table.
	ErrUnsupportedInstruction = errors.New("isa: unsupported instruction")

	// ErrInsufficientOperands indicates an opcode handler given wrong arity.
	ErrInsufficientOperands = errors.New("isa: insufficient operands")
)

// Instruction is a decoded line of the input assembly (spec.md §3).
// Immutable once produced by the parser.
type Instruction struct {
	Opcode     string
	Operands   []operand.Operand
	SourceLine int
}

// Kind enumerates what happened to the program counter after executing
// an instruction, replacing spec.md §4.4's magic 1/0/-1/label-name
// control token with a small closed enum plus a payload field.
type Kind int

const (
	// FallThrough means pc was left unchanged and the loop advances it
	// by one (spec.md's token "1").
	FallThrough Kind = iota
	// Returned means a non-terminal return occurred (token "0").
	Returned
	// Terminal means the program's final return occurred (token "-1").
	Terminal
	// Jumped means pc was set to a taken branch/call/jalr target (token "label name").
	Jumped
)

// Control is the control token an executed instruction returns to the
// interpreter loop (spec.md §4.4).
type Control struct {
	Kind Kind
	// Label names the taken target when Kind == Jumped. It is the
	// assembly label for branches/calls/j, or a decimal rendering of the
	// destination address for jalr (which jumps to a computed register
	// value, not a named label). ret never yields Jumped.
	Label string
}

// Execute performs opcode's concrete semantics over state, mutating
// registers/memory (including pc) and returning the control token.
// A call whose target operand classified as CallFunction (spec.md §4.5)
// never executes assembly.
func Execute(state *machine.State, instr Instruction) (Control, error) {
	ops := instr.Operands
	switch instr.Opcode {
	case "addi", "add":
		return arith(state, ops, func(a, b int) int { return a + b })
	case "subi", "sub":
		return arith(state, ops, func(a, b int) int { return a - b })
	case "andi", "and":
		return arith(state, ops, func(a, b int) int { return a & b })
	case "xori", "xor":
		return arith(state, ops, func(a, b int) int { return a ^ b })
	case "srli", "srl":
		return arith(state, ops, func(a, b int) int { return a >> uint(b) })
	case "slli", "sll":
		return arith(state, ops, func(a, b int) int { return a << uint(b) })
	case "lui":
		return executeLUI(state, ops)
	case "mv":
		return executeMV(state, ops)
	case "lw":
		return executeLW(state, ops)
	case "sw":
		return executeSW(state, ops)
	case "beq":
		return executeBranch(state, ops, 3, func(a, b int) bool { return a == b }, 2)
	case "bne":
		return executeBranch(state, ops, 3, func(a, b int) bool { return a != b }, 2)
	case "blt":
		return executeBranch(state, ops, 3, func(a, b int) bool { return a < b }, 2)
	case "bnez":
		return executeBranch(state, ops, 2, func(a, _ int) bool { return a != 0 }, 1)
	case "j":
		return executeJ(state, ops)
	case "call":
		return executeCall(state, ops)
	case "jalr":
		return executeJALR(state, ops)
	case "ret":
		return executeRet(state, ops)
	default:
		return Control{}, fmt.Errorf("%w: %q", ErrUnsupportedInstruction, instr.Opcode)
	}
}

func arith(state *machine.State, ops []operand.Operand, f func(a, b int) int) (Control, error) {
	if len(ops) < 3 {
		return Control{}, ErrInsufficientOperands
	}
	v1, err := operand.Value(state, ops[1])
	if err != nil {
		return Control{}, err
	}
	v2, err := operand.Value(state, ops[2])
	if err != nil {
		return Control{}, err
	}
	if err := operand.Write(state, ops[0], f(v1, v2)); err != nil {
		return Control{}, err
	}
	return Control{Kind: FallThrough}, nil
}

func executeLUI(state *machine.State, ops []operand.Operand) (Control, error) {
	if len(ops) < 2 {
		return Control{}, ErrInsufficientOperands
	}
	v, err := operand.Value(state, ops[1])
	if err != nil {
		return Control{}, err
	}
	if err := operand.Write(state, ops[0], v<<12); err != nil {
		return Control{}, err
	}
	return Control{Kind: FallThrough}, nil
}

// executeMV is the pseudo-instruction "mv op0, op1" == "addi op0, op1, 0".
func executeMV(state *machine.State, ops []operand.Operand) (Control, error) {
	if len(ops) < 2 {
		return Control{}, ErrInsufficientOperands
	}
	v, err := operand.Value(state, ops[1])
	if err != nil {
		return Control{}, err
	}
	if err := operand.Write(state, ops[0], v); err != nil {
		return Control{}, err
	}
	return Control{Kind: FallThrough}, nil
}

func executeLW(state *machine.State, ops []operand.Operand) (Control, error) {
	if len(ops) < 2 {
		return Control{}, ErrInsufficientOperands
	}
	v, err := operand.Value(state, ops[1])
	if err != nil {
		return Control{}, err
	}
	if err := operand.Write(state, ops[0], v); err != nil {
		return Control{}, err
	}
	return Control{Kind: FallThrough}, nil
}

func executeSW(state *machine.State, ops []operand.Operand) (Control, error) {
	if len(ops) < 2 {
		return Control{}, ErrInsufficientOperands
	}
	v, err := operand.Value(state, ops[0])
	if err != nil {
		return Control{}, err
	}
	if err := operand.Write(state, ops[1], v); err != nil {
		return Control{}, err
	}
	return Control{Kind: FallThrough}, nil
}

func executeBranch(state *machine.State, ops []operand.Operand, arity int, cond func(a, b int) bool, targetIdx int) (Control, error) {
	if len(ops) < arity {
		return Control{}, ErrInsufficientOperands
	}
	a, err := operand.Value(state, ops[0])
	if err != nil {
		return Control{}, err
	}
	var b int
	if targetIdx == 2 {
		b, err = operand.Value(state, ops[1])
		if err != nil {
			return Control{}, err
		}
	}
	if !cond(a, b) {
		return Control{Kind: FallThrough}, nil
	}
	label, ok := ops[targetIdx].(operand.Label)
	if !ok {
		return Control{}, fmt.Errorf("isa: branch target %v is not a label", ops[targetIdx])
	}
	if err := state.SetReg(machine.PC, label.TargetLine); err != nil {
		return Control{}, err
	}
	return Control{Kind: Jumped, Label: label.Name}, nil
}

func executeJ(state *machine.State, ops []operand.Operand) (Control, error) {
	if len(ops) < 1 {
		return Control{}, ErrInsufficientOperands
	}
	label, ok := ops[0].(operand.Label)
	if !ok {
		return Control{}, fmt.Errorf("isa: jump target %v is not a label", ops[0])
	}
	if err := state.SetReg(machine.PC, label.TargetLine); err != nil {
		return Control{}, err
	}
	return Control{Kind: Jumped, Label: label.Name}, nil
}

// executeCall handles both "call <label>" (a real jump with a saved
// return address) and "call <external-function>" (spec.md §4.5: no
// assembly to jump to, so the call site itself completes in one step).
// The taint side effect (tainting a0 via the function table) is the
// policy's job, not the executor's; see pkg/policy.
func executeCall(state *machine.State, ops []operand.Operand) (Control, error) {
	if len(ops) < 1 {
		return Control{}, ErrInsufficientOperands
	}
	pc, err := state.GetReg(machine.PC)
	if err != nil {
		return Control{}, err
	}
	switch target := ops[0].(type) {
	case operand.Label:
		if err := state.SetReg(machine.RA, pc+1); err != nil {
			return Control{}, err
		}
		if err := state.SetReg(machine.PC, target.TargetLine); err != nil {
			return Control{}, err
		}
		return Control{Kind: Jumped, Label: target.Name}, nil
	case operand.CallFunction:
		// Per spec.md §9: the call-site produces a tainted a0 and falls
		// through to the caller's next instruction. The ra push and pop of
		// the simulated call cancel out within this step, so ra keeps the
		// caller's return address.
		if err := state.SetReg("a0", 0); err != nil {
			return Control{}, err
		}
		return Control{Kind: FallThrough}, nil
	default:
		return Control{}, fmt.Errorf("isa: call target %v is neither a label nor a known function", ops[0])
	}
}

func executeJALR(state *machine.State, ops []operand.Operand) (Control, error) {
	if len(ops) != 3 {
		return Control{}, ErrInsufficientOperands
	}
	pc, err := state.GetReg(machine.PC)
	if err != nil {
		return Control{}, err
	}
	v1, err := operand.Value(state, ops[1])
	if err != nil {
		return Control{}, err
	}
	v2, err := operand.Value(state, ops[2])
	if err != nil {
		return Control{}, err
	}
	target := v1 + v2
	if err := operand.Write(state, ops[0], pc+1); err != nil {
		return Control{}, err
	}
	if err := state.SetReg(machine.PC, target); err != nil {
		return Control{}, err
	}
	if target == machine.TerminalRA {
		return Control{Kind: Terminal}, nil
	}
	return Control{Kind: Jumped, Label: fmt.Sprintf("%d", target)}, nil
}

// executeRet desugars to "jalr zero, ra, zero" (spec.md §4.4) and turns
// a jump to the terminal sentinel into the Terminal control token, a
// non-terminal jump to ra into Returned otherwise.
func executeRet(state *machine.State, ops []operand.Operand) (Control, error) {
	if len(ops) != 0 {
		return Control{}, ErrInsufficientOperands
	}
	jalrOps := []operand.Operand{
		operand.Register{Name: "zero", Idx: 0},
		operand.Register{Name: "ra", Idx: machine.RA},
		operand.Register{Name: "zero", Idx: 0},
	}
	ctrl, err := executeJALR(state, jalrOps)
	if err != nil {
		return Control{}, err
	}
	if ctrl.Kind == Terminal {
		return ctrl, nil
	}
	return Control{Kind: Returned}, nil
}
