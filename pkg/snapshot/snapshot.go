// Package snapshot implements the snapshot/restore mechanism of spec.md
// §4.8: freeze a complete Interpreter to a named slot, and reload any
// slot as an independent Interpreter sharing nothing with the original.
//
// Per spec.md §4.8/§9, only data is serialized — Machine State, Shadow
// State, pc, current_block, current_function, taint_source, the snapshot
// counter, the decoded program, and the label table. The policy is never
// serialized; Load takes one from the caller, exactly as spec.md §9
// recommends ("serialize only data... on load, re-inject a Policy chosen
// by the host").
//
// The on-disk layout follows original_source/interpreter.py's
// pickle_cabinet/jar_<file>/{pickles,data} split, and
// tetratelabs-wazero/cache.go's idiom of an explicit, directory-backed
// store constructed once rather than driven through bare package-level
// functions.
package snapshot

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/Terminator-Canaries/tainty-thing/pkg/interp"
	"github.com/Terminator-Canaries/tainty-thing/pkg/isa"
	"github.com/Terminator-Canaries/tainty-thing/pkg/machine"
	"github.com/Terminator-Canaries/tainty-thing/pkg/policy"
	"github.com/Terminator-Canaries/tainty-thing/pkg/shadow"
)

// ErrSnapshot indicates a serialize/deserialize failure (spec.md §7).
var ErrSnapshot = errors.New("snapshot: serialize/deserialize failure")

// Store manages one jar: a directory holding a "pickles" subdirectory of
// snapshot slots and a "data" subdirectory for derived analysis output
// (percentage-tainted series, etc — see cmd/tainty's analyze subcommand).
type Store struct {
	Dir        string
	FileHeader string
	Log        *logrus.Logger
}

// Open creates (if needed) the jar directory structure under dir and
// returns a Store writing slots with the given fileheader prefix.
func Open(dir, fileHeader string) (*Store, error) {
	for _, sub := range []string{"pickles", "data"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating %s: %v", ErrSnapshot, sub, err)
		}
	}
	log := logrus.StandardLogger()
	return &Store{Dir: dir, FileHeader: fileHeader, Log: log}, nil
}

// wireState is the serialized form of an Interpreter. Exported fields
// only, so gob can round-trip it without custom (de)serializers.
type wireState struct {
	Regs            [machine.NumRegisters]int
	Mem             []int
	MemSize         int
	StackSize       int
	ShadowRegs      [machine.NumRegisters]shadow.Mask
	ShadowMem       []shadow.Mask
	TaintSource     shadow.Mask
	Program         []isa.Instruction
	Labels          map[string]int
	CurrentBlock    string
	CurrentFunction string
	SnapCount       int
}

func toWire(in *interp.Interpreter) wireState {
	return wireState{
		Regs:            in.State.Regs,
		Mem:             append([]int(nil), in.State.Mem...),
		MemSize:         in.State.MemSize,
		StackSize:       in.State.StackSize,
		ShadowRegs:      in.Shadow.Regs,
		ShadowMem:       append([]shadow.Mask(nil), in.Shadow.Mem...),
		TaintSource:     in.Tracker.TaintSource,
		Program:         in.Program,
		Labels:          in.Labels,
		CurrentBlock:    in.CurrentBlock,
		CurrentFunction: in.CurrentFunction,
		SnapCount:       in.SnapCount,
	}
}

// SlotName encodes (fileheader, counter, pc) so that lexicographic order
// equals execution order (spec.md §4.8), matching
// original_source/interpreter.py's "state-instr%03d-line%03d" naming.
func SlotName(fileHeader string, counter, pc int) string {
	return fmt.Sprintf("%s-instr%03d-line%03d", fileHeader, counter, pc)
}

// Save freezes in's complete state to a new slot and increments the
// interpreter's snapshot counter. Returns the slot's path.
func (s *Store) Save(in *interp.Interpreter) (string, error) {
	pc, err := in.State.GetReg(machine.PC)
	if err != nil {
		return "", err
	}
	slot := SlotName(s.FileHeader, in.SnapCount, pc)
	path := filepath.Join(s.Dir, "pickles", slot)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(toWire(in)); err != nil {
		return "", fmt.Errorf("%w: encoding %s: %v", ErrSnapshot, slot, err)
	}
	in.SnapCount++
	s.Log.WithField("slot", slot).Debug("snapshot written")
	return path, nil
}

// Load reloads a slot as a fresh, independent Interpreter driven by pol
// (the policy is never persisted — see the package doc).
func Load(path string, pol *policy.Policy) (*interp.Interpreter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	defer f.Close()

	var w wireState
	if err := gob.NewDecoder(f).Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrSnapshot, path, err)
	}

	st := &machine.State{
		Regs:      w.Regs,
		Mem:       w.Mem,
		MemSize:   w.MemSize,
		StackSize: w.StackSize,
	}
	sh := &shadow.State{Regs: w.ShadowRegs, Mem: w.ShadowMem}
	tracker := shadow.NewTracker(sh)
	tracker.TaintSource = w.TaintSource

	in := &interp.Interpreter{
		State:           st,
		Shadow:          sh,
		Tracker:         tracker,
		Program:         w.Program,
		Labels:          w.Labels,
		Policy:          pol,
		SnapCount:       w.SnapCount,
		CurrentBlock:    w.CurrentBlock,
		CurrentFunction: w.CurrentFunction,
		Log:             logrus.StandardLogger(),
	}
	logrus.WithField("path", path).Debug("snapshot loaded")
	return in, nil
}

// List enumerates slot names in a jar's pickles directory, in
// lexicographic (== execution) order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.Dir, "pickles"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
