package machine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewInitializesSPAndRA(t *testing.T) {
	s := New(DefaultMemSize, DefaultStackSize)
	sp, err := s.GetReg("sp")
	require.NoError(t, err)
	require.Equal(t, DefaultMemSize, sp)

	ra, err := s.GetReg("ra")
	require.NoError(t, err)
	require.Equal(t, TerminalRA, ra)
}

func TestZeroRegisterWritesAreDropped(t *testing.T) {
	s := New(DefaultMemSize, DefaultStackSize)
	require.NoError(t, s.SetReg("zero", 42))
	v, err := s.GetReg("zero")
	require.NoError(t, err)
	require.Equal(t, 0, v)
}

func TestInvalidRegisterName(t *testing.T) {
	s := New(DefaultMemSize, DefaultStackSize)
	_, err := s.GetReg("not-a-register")
	require.ErrorIs(t, err, ErrInvalidRegister)
}

func TestInvalidRegisterIndex(t *testing.T) {
	s := New(DefaultMemSize, DefaultStackSize)
	_, err := s.GetReg(33)
	require.ErrorIs(t, err, ErrInvalidRegister)
}

func TestMemoryBounds(t *testing.T) {
	s := New(DefaultMemSize, DefaultStackSize)
	require.NoError(t, s.SetMem(0, 7))
	v, err := s.GetMem(0)
	require.NoError(t, err)
	require.Equal(t, 7, v)

	_, err = s.GetMem(-1)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = s.GetMem(DefaultMemSize)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

// TestStackPointerOffByOne is spec.md §8's boundary scenario: sp starts
// at MemSize, so a store through it immediately after construction must
// be out of bounds.
func TestStackPointerOffByOne(t *testing.T) {
	s := New(DefaultMemSize, DefaultStackSize)
	sp, err := s.GetReg("sp")
	require.NoError(t, err)
	err = s.SetMem(sp, 1)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestResolveRegisterByIndex(t *testing.T) {
	idx, err := ResolveRegister(PC)
	require.NoError(t, err)
	require.Equal(t, PC, idx)
}
