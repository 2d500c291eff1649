package interp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Terminator-Canaries/tainty-thing/pkg/isa"
	"github.com/Terminator-Canaries/tainty-thing/pkg/machine"
	"github.com/Terminator-Canaries/tainty-thing/pkg/operand"
	"github.com/Terminator-Canaries/tainty-thing/pkg/policy"
	"github.com/Terminator-Canaries/tainty-thing/pkg/shadow"
)

func reg(name string, idx int) operand.Register { return operand.Register{Name: name, Idx: idx} }

// TestTaintSourceToSink is spec.md §8 scenario 1 end to end: call
// get_user_location; mv a1, a0; ret.
func TestTaintSourceToSink(t *testing.T) {
	program := []isa.Instruction{
		{Opcode: "call", Operands: []operand.Operand{operand.CallFunction{Name: "get_user_location"}}},
		{Opcode: "mv", Operands: []operand.Operand{reg("a1", 11), reg("a0", 10)}},
		{Opcode: "ret"},
	}
	labels := map[string]int{"main": 0}
	pol := policy.Default(DefaultFunctions)

	in, err := New(program, labels, pol, machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, err)

	cont, err := in.Step()
	require.NoError(t, err)
	require.True(t, cont)

	cont, err = in.Step()
	require.NoError(t, err)
	require.True(t, cont)

	a1Taint, err := in.Shadow.RegTaint("a1")
	require.NoError(t, err)
	require.Equal(t, shadow.Loc, a1Taint)

	cont, err = in.Step()
	require.NoError(t, err)
	require.False(t, cont)

	a0Taint, err := in.Shadow.RegTaint("a0")
	require.NoError(t, err)
	require.Equal(t, shadow.Loc, a0Taint)
	require.Equal(t, shadow.Mask(0), in.Tracker.TaintSource)
}

// TestLoadStoreThroughMemoryPropagatesTaint is spec.md §8 scenario 3.
func TestLoadStoreThroughMemoryPropagatesTaint(t *testing.T) {
	program := []isa.Instruction{
		{Opcode: "addi", Operands: []operand.Operand{reg("sp", 2), reg("sp", 2), operand.Constant{Value: -16}}},
		{Opcode: "call", Operands: []operand.Operand{operand.CallFunction{Name: "get_uid"}}},
		{Opcode: "mv", Operands: []operand.Operand{reg("t0", 5), reg("a0", 10)}},
		{Opcode: "sw", Operands: []operand.Operand{reg("t0", 5), operand.Memory{Offset: 0, BaseReg: "sp"}}},
		{Opcode: "lw", Operands: []operand.Operand{reg("t1", 6), operand.Memory{Offset: 0, BaseReg: "sp"}}},
		{Opcode: "ret"},
	}
	labels := map[string]int{"main": 0}
	pol := policy.Default(DefaultFunctions)

	in, err := New(program, labels, pol, machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, err)

	require.NoError(t, in.Run())

	sp := machine.DefaultMemSize - 16

	memTaint, err := in.Shadow.MemTaint(sp)
	require.NoError(t, err)
	require.Equal(t, shadow.UID, memTaint)

	t1Taint, err := in.Shadow.RegTaint("t1")
	require.NoError(t, err)
	require.Equal(t, shadow.UID, t1Taint)
}

// TestArithmeticOR is spec.md §8 scenario 2.
func TestArithmeticOR(t *testing.T) {
	program := []isa.Instruction{
		{Opcode: "call", Operands: []operand.Operand{operand.CallFunction{Name: "get_user_location"}}},
		{Opcode: "mv", Operands: []operand.Operand{reg("a1", 11), reg("a0", 10)}},
		{Opcode: "call", Operands: []operand.Operand{operand.CallFunction{Name: "get_uid"}}},
		{Opcode: "add", Operands: []operand.Operand{reg("a2", 12), reg("a1", 11), reg("a0", 10)}},
		{Opcode: "ret"},
	}
	labels := map[string]int{"main": 0}
	pol := policy.Default(DefaultFunctions)

	in, err := New(program, labels, pol, machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, err)
	require.NoError(t, in.Run())

	a2Taint, err := in.Shadow.RegTaint("a2")
	require.NoError(t, err)
	require.Equal(t, shadow.Loc|shadow.UID, a2Taint)
}

// TestBranchNotTakenCarriesNoTaintFlow is spec.md §8 scenario 4: a1
// inherits a0's (clean) taint, and no implicit control-dependency taint
// is introduced by the not-taken branch.
func TestBranchNotTakenCarriesNoTaintFlow(t *testing.T) {
	program := []isa.Instruction{
		{Opcode: "addi", Operands: []operand.Operand{reg("a0", 10), reg("zero", 0), operand.Constant{Value: 1}}},
		{Opcode: "beq", Operands: []operand.Operand{reg("a0", 10), reg("zero", 0), operand.Label{Name: "L", TargetLine: 3}}},
		{Opcode: "addi", Operands: []operand.Operand{reg("a1", 11), reg("a0", 10), operand.Constant{Value: 0}}},
		{Opcode: "ret"},
	}
	labels := map[string]int{"main": 0, "L": 3}
	pol := policy.Default(DefaultFunctions)

	in, err := New(program, labels, pol, machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, err)
	require.NoError(t, in.Run())

	a0Taint, err := in.Shadow.RegTaint("a0")
	require.NoError(t, err)
	a1Taint, err2 := in.Shadow.RegTaint("a1")
	require.NoError(t, err2)
	require.Equal(t, shadow.Mask(0), a0Taint)
	require.Equal(t, a0Taint, a1Taint)

	// The not-taken branch fell through to the addi at index 2, and the
	// terminal ret then loaded the ra sentinel into pc.
	a1, err := in.State.GetReg("a1")
	require.NoError(t, err)
	require.Equal(t, 1, a1)

	pc, err := in.State.GetReg("pc")
	require.NoError(t, err)
	require.Equal(t, machine.TerminalRA, pc)
}

// TestConstantAdditionStaysTaintFree is spec.md §8 scenario 6.
func TestConstantAdditionStaysTaintFree(t *testing.T) {
	program := []isa.Instruction{
		{Opcode: "addi", Operands: []operand.Operand{reg("a0", 10), reg("zero", 0), operand.Constant{Value: 42}}},
		{Opcode: "addi", Operands: []operand.Operand{reg("a1", 11), reg("zero", 0), operand.Constant{Value: 7}}},
		{Opcode: "add", Operands: []operand.Operand{reg("a2", 12), reg("a0", 10), reg("a1", 11)}},
		{Opcode: "ret"},
	}
	labels := map[string]int{"main": 0}
	pol := policy.Default(DefaultFunctions)

	in, err := New(program, labels, pol, machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, err)
	require.NoError(t, in.Run())

	for _, name := range []string{"a0", "a1", "a2"} {
		taint, err := in.Shadow.RegTaint(name)
		require.NoError(t, err)
		require.Equal(t, shadow.Mask(0), taint)
	}

	a2, err := in.State.GetReg("a2")
	require.NoError(t, err)
	require.Equal(t, 49, a2)
}

func TestNewFailsWithoutMainLabel(t *testing.T) {
	_, err := New(nil, map[string]int{}, policy.Default(DefaultFunctions), machine.DefaultMemSize, machine.DefaultStackSize)
	require.ErrorIs(t, err, ErrNoSuchLabel)
}

func TestFunctionNameSetProjectsKeys(t *testing.T) {
	set := FunctionNameSet(DefaultFunctions)
	require.True(t, set["get_uid"])
	require.Len(t, set, len(DefaultFunctions))
}
