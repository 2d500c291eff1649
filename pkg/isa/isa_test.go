package isa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Terminator-Canaries/tainty-thing/pkg/machine"
	"github.com/Terminator-Canaries/tainty-thing/pkg/operand"
)

func reg(name string, idx int) operand.Register { return operand.Register{Name: name, Idx: idx} }

func TestAddiComputesSum(t *testing.T) {
	st := machine.New(machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, st.SetReg("a1", 4))
	ctrl, err := Execute(st, Instruction{Opcode: "addi", Operands: []operand.Operand{
		reg("a0", 10), reg("a1", 11), operand.Constant{Value: 5},
	}})
	require.NoError(t, err)
	require.Equal(t, FallThrough, ctrl.Kind)
	v, err := st.GetReg("a0")
	require.NoError(t, err)
	require.Equal(t, 9, v)
}

func TestBeqNotTakenFallsThrough(t *testing.T) {
	st := machine.New(machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, st.SetReg("a0", 1))
	require.NoError(t, st.SetReg("a1", 2))
	ctrl, err := Execute(st, Instruction{Opcode: "beq", Operands: []operand.Operand{
		reg("a0", 10), reg("a1", 11), operand.Label{Name: "L", TargetLine: 7},
	}})
	require.NoError(t, err)
	require.Equal(t, FallThrough, ctrl.Kind)
	pc, err := st.GetReg("pc")
	require.NoError(t, err)
	require.Equal(t, 0, pc)
}

func TestBeqTakenJumps(t *testing.T) {
	st := machine.New(machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, st.SetReg("a0", 3))
	require.NoError(t, st.SetReg("a1", 3))
	ctrl, err := Execute(st, Instruction{Opcode: "beq", Operands: []operand.Operand{
		reg("a0", 10), reg("a1", 11), operand.Label{Name: "L", TargetLine: 7},
	}})
	require.NoError(t, err)
	require.Equal(t, Jumped, ctrl.Kind)
	require.Equal(t, "L", ctrl.Label)
	pc, err := st.GetReg("pc")
	require.NoError(t, err)
	require.Equal(t, 7, pc)
}

func TestSwWritesConcreteValueThroughMemory(t *testing.T) {
	st := machine.New(machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, st.SetReg("sp", 100))
	require.NoError(t, st.SetReg("a0", 42))
	_, err := Execute(st, Instruction{Opcode: "sw", Operands: []operand.Operand{
		reg("a0", 10), operand.Memory{Offset: 0, BaseReg: "sp"},
	}})
	require.NoError(t, err)
	v, err := st.GetMem(100)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestCallToLabelSetsRaAndJumps(t *testing.T) {
	st := machine.New(machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, st.SetReg("pc", 3))
	ctrl, err := Execute(st, Instruction{Opcode: "call", Operands: []operand.Operand{
		operand.Label{Name: "foo", TargetLine: 20},
	}})
	require.NoError(t, err)
	require.Equal(t, Jumped, ctrl.Kind)
	ra, err := st.GetReg("ra")
	require.NoError(t, err)
	require.Equal(t, 4, ra)
	pc, err := st.GetReg("pc")
	require.NoError(t, err)
	require.Equal(t, 20, pc)
}

func TestCallToExternalFunctionFallsThrough(t *testing.T) {
	st := machine.New(machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, st.SetReg("pc", 3))
	ctrl, err := Execute(st, Instruction{Opcode: "call", Operands: []operand.Operand{
		operand.CallFunction{Name: "get_user_location"},
	}})
	require.NoError(t, err)
	require.Equal(t, FallThrough, ctrl.Kind)
}

func TestRetToTerminalSentinelIsTerminal(t *testing.T) {
	st := machine.New(machine.DefaultMemSize, machine.DefaultStackSize)
	ctrl, err := Execute(st, Instruction{Opcode: "ret"})
	require.NoError(t, err)
	require.Equal(t, Terminal, ctrl.Kind)
}

func TestRetToOrdinaryRaIsReturned(t *testing.T) {
	st := machine.New(machine.DefaultMemSize, machine.DefaultStackSize)
	require.NoError(t, st.SetReg("ra", 9))
	ctrl, err := Execute(st, Instruction{Opcode: "ret"})
	require.NoError(t, err)
	require.Equal(t, Returned, ctrl.Kind)
	pc, err := st.GetReg("pc")
	require.NoError(t, err)
	require.Equal(t, 9, pc)
}

func TestUnsupportedOpcode(t *testing.T) {
	st := machine.New(machine.DefaultMemSize, machine.DefaultStackSize)
	_, err := Execute(st, Instruction{Opcode: "nope"})
	require.ErrorIs(t, err, ErrUnsupportedInstruction)
}

func TestInsufficientOperands(t *testing.T) {
	st := machine.New(machine.DefaultMemSize, machine.DefaultStackSize)
	_, err := Execute(st, Instruction{Opcode: "addi", Operands: []operand.Operand{reg("a0", 10)}})
	require.ErrorIs(t, err, ErrInsufficientOperands)
}
