// Package operand implements the tagged operand variant of spec.md §3 and
// the single-pass classifier of spec.md §4.3.
//
// An Operand is a closed sum type: Register, Memory, Constant, Label, or
// CallFunction. Go has no sum types, so the convention used throughout
// this module (and across the teacher's own pkg/asm.Instruction) is an
// interface with an unexported marker method, implemented by exactly the
// variants declared here; the executor and policy packages type-switch on
// it instead of calling is_register()/is_memory()/... predicates.
package operand

import (
	"encoding/gob"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Terminator-Canaries/tainty-thing/pkg/machine"
)

func init() {
	// Operand is stored inside isa.Instruction.Operands, which is encoded
	// through pkg/snapshot's gob wire format; gob needs every concrete
	// type behind the interface registered up front.
	gob.Register(Register{})
	gob.Register(Memory{})
	gob.Register(Constant{})
	gob.Register(Label{})
	gob.Register(CallFunction{})
}

// ErrNotAnAddress is returned when Value/Write is called on
// an operand that does not resolve to a concrete register or memory cell.
var ErrNotAnAddress = errors.New("operand: not a register or memory reference")

// memRefPattern implements spec.md §4.3 rule 3: "-?[A-Za-z0-9]+([A-Za-z0-9]+)".
var memRefPattern = regexp.MustCompile(`^-?[A-Za-z0-9]+\([A-Za-z0-9]+\)$`)

// Operand is the closed operand variant.
type Operand interface {
	// operand is an unexported marker restricting implementations to this package.
	operand()
	// String renders the operand the way it appeared in the source token.
	String() string
}

// Register is a named or indexed register operand.
type Register struct {
	Name string
	Idx  int
}

func (Register) operand()         {}
func (r Register) String() string { return r.Name }

// Memory is a (offset, base) memory reference. It is resolved to a
// concrete address only at use time, never at classification time.
type Memory struct {
	Offset  int
	BaseReg string
}

func (Memory) operand()         {}
func (m Memory) String() string { return fmt.Sprintf("%d(%s)", m.Offset, m.BaseReg) }

// Address resolves this memory reference against the given state.
func (m Memory) Address(s *machine.State) (int, error) {
	base, err := s.GetReg(m.BaseReg)
	if err != nil {
		return 0, err
	}
	return base + m.Offset, nil
}

// Constant is an immediate integer operand.
type Constant struct {
	Value int
}

func (Constant) operand()         {}
func (c Constant) String() string { return strconv.Itoa(c.Value) }

// Label is a resolved jump/branch/call target. TargetLine is an
// instruction index, not a byte address.
type Label struct {
	Name       string
	TargetLine int
}

func (Label) operand()         {}
func (l Label) String() string { return l.Name }

// CallFunction names an entry in the simulated external function table.
type CallFunction struct {
	Name string
}

func (CallFunction) operand()         {}
func (c CallFunction) String() string { return c.Name }

// Classify implements the stable classification order of spec.md §4.3:
// register name, then label, then memory reference, then call-function
// name, then signed decimal constant. labels and functions are the
// program's label table and external-function table, respectively.
func Classify(token string, labels map[string]int, functions map[string]bool) (Operand, error) {
	if idx, err := machine.ResolveRegister(strings.ToLower(token)); err == nil {
		return Register{Name: strings.ToLower(token), Idx: idx}, nil
	}
	if line, ok := labels[token]; ok {
		return Label{Name: token, TargetLine: line}, nil
	}
	if memRefPattern.MatchString(token) {
		return classifyMemory(token)
	}
	if functions[token] {
		return CallFunction{Name: token}, nil
	}
	v, err := strconv.Atoi(token)
	if err != nil {
		return nil, fmt.Errorf("operand: cannot parse %q as a constant: %w", token, err)
	}
	return Constant{Value: v}, nil
}

func classifyMemory(token string) (Operand, error) {
	open := strings.IndexByte(token, '(')
	offsetStr := token[:open]
	base := strings.ToLower(strings.TrimSuffix(token[open+1:], ")"))
	offset, err := strconv.Atoi(offsetStr)
	if err != nil {
		return nil, fmt.Errorf("operand: bad memory offset in %q: %w", token, err)
	}
	return Memory{Offset: offset, BaseReg: base}, nil
}

// Value resolves an operand to an integer against the given state, per
// spec.md §4.1's operand_value contract. Label operands have no value;
// callers needing a jump target must type-switch for Label themselves.
func Value(s *machine.State, op Operand) (int, error) {
	switch o := op.(type) {
	case Register:
		return s.GetReg(o.Idx)
	case Memory:
		addr, err := o.Address(s)
		if err != nil {
			return 0, err
		}
		return s.GetMem(addr)
	case Constant:
		return o.Value, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrNotAnAddress, op)
	}
}

// Write mirrors Value: writes v to the location op denotes.
func Write(s *machine.State, op Operand, v int) error {
	switch o := op.(type) {
	case Register:
		return s.SetReg(o.Idx, v)
	case Memory:
		addr, err := o.Address(s)
		if err != nil {
			return err
		}
		return s.SetMem(addr, v)
	default:
		return fmt.Errorf("%w: %v", ErrNotAnAddress, op)
	}
}
