// Package interp implements the interpreter loop of spec.md §4.6: fetch
// the decoded instruction at pc, run the taint policy over it, execute
// its concrete semantics, then advance pc (or stop at the terminal
// return).
package interp

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Terminator-Canaries/tainty-thing/pkg/isa"
	"github.com/Terminator-Canaries/tainty-thing/pkg/machine"
	"github.com/Terminator-Canaries/tainty-thing/pkg/policy"
	"github.com/Terminator-Canaries/tainty-thing/pkg/shadow"
)

// DefaultFunctions is the minimum external-function table of spec.md §6.
var DefaultFunctions = map[string]shadow.Mask{
	"get_user_location": shadow.Loc,
	"get_uid":           shadow.UID,
	"get_user_name":     shadow.Name,
	"get_face":          shadow.Face,
	"get_password":      shadow.Password,
}

// ErrNoSuchLabel is returned when the entry-point label cannot be found.
var ErrNoSuchLabel = errors.New("interp: no such label")

// FunctionNameSet projects a function table down to the name set the
// parser's operand classifier needs (spec.md §4.3 priority 4).
func FunctionNameSet(functions map[string]shadow.Mask) map[string]bool {
	set := make(map[string]bool, len(functions))
	for name := range functions {
		set[name] = true
	}
	return set
}

// Interpreter owns everything spec.md §3 assigns to it: the concrete and
// shadow states, the decoded program, its label table, the taint policy,
// a snapshot counter, and the informational current_block/current_function
// fields.
type Interpreter struct {
	State           *machine.State
	Shadow          *shadow.State
	Tracker         *shadow.Tracker
	Program         []isa.Instruction
	Labels          map[string]int
	Policy          *policy.Policy
	SnapCount       int
	CurrentBlock    string
	CurrentFunction string

	Log *logrus.Logger
}

// New constructs an Interpreter ready to run from the "main" label, per
// spec.md §3's lifecycle: sp = memSize, ra = terminal sentinel, pc = main.
func New(program []isa.Instruction, labels map[string]int, pol *policy.Policy, memSize, stackSize int) (*Interpreter, error) {
	entry, ok := labels["main"]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchLabel, "main")
	}
	st := machine.New(memSize, stackSize)
	if err := st.SetReg(machine.PC, entry); err != nil {
		return nil, err
	}
	sh := shadow.New(memSize)
	return &Interpreter{
		State:           st,
		Shadow:          sh,
		Tracker:         shadow.NewTracker(sh),
		Program:         program,
		Labels:          labels,
		Policy:          pol,
		CurrentBlock:    "main",
		CurrentFunction: "main",
		Log:             logrus.StandardLogger(),
	}, nil
}

// Step executes exactly one instruction: policy first, then concrete
// semantics, then pc advance (spec.md §4.6/§5). It reports whether the
// interpreter should keep running.
func (in *Interpreter) Step() (bool, error) {
	pc, err := in.State.GetReg(machine.PC)
	if err != nil {
		return false, err
	}
	if pc < 0 || pc >= len(in.Program) {
		return false, fmt.Errorf("isa: pc %d out of program bounds", pc)
	}
	instr := in.Program[pc]

	in.Log.WithFields(logrus.Fields{"pc": pc, "opcode": instr.Opcode}).Debug("run instr")

	if err := in.Policy.Apply(in.Tracker, in.State, instr.Opcode, instr.Operands); err != nil {
		return false, err
	}

	ctrl, err := isa.Execute(in.State, instr)
	if err != nil {
		return false, err
	}

	switch ctrl.Kind {
	case isa.Terminal:
		return false, nil
	case isa.Returned:
		in.recomputeBlock()
		return true, nil
	case isa.FallThrough:
		return true, in.State.SetReg(machine.PC, pc+1)
	case isa.Jumped:
		in.CurrentBlock = ctrl.Label
		if instr.Opcode == "call" {
			in.CurrentFunction = ctrl.Label
		}
		return true, nil
	default:
		return false, fmt.Errorf("interp: unknown control kind %v", ctrl.Kind)
	}
}

// Run drives Step to completion (the terminal return), per spec.md §3.
func (in *Interpreter) Run() error {
	for {
		cont, err := in.Step()
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// recomputeBlock finds the label whose instruction range contains pc,
// following original_source/interpreter.py:set_corresponding_block. Block
// tracking is informational only (spec.md §4.6) and never affects
// execution or taint.
func (in *Interpreter) recomputeBlock() {
	pc, err := in.State.GetReg(machine.PC)
	if err != nil {
		return
	}
	best := ""
	bestLine := -1
	for name, line := range in.Labels {
		if line <= pc && line > bestLine {
			best = name
			bestLine = line
		}
	}
	if best != "" {
		in.CurrentBlock = best
		in.CurrentFunction = best
	}
}
