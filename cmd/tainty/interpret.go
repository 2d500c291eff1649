package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Terminator-Canaries/tainty-thing/internal/parse"
	"github.com/Terminator-Canaries/tainty-thing/pkg/interp"
	"github.com/Terminator-Canaries/tainty-thing/pkg/machine"
	"github.com/Terminator-Canaries/tainty-thing/pkg/policy"
	"github.com/Terminator-Canaries/tainty-thing/pkg/snapshot"
)

const pickleCabinet = "pickle_cabinet"

// runInterpret implements spec.md §6's "interpret <riscv_file>": run the
// program to completion, writing one snapshot per step to
// pickle_cabinet/jar_<sanitized_file>/pickles/state-instrNNN-lineNNN.
func runInterpret(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: tainty interpret <riscv_file>")
	}
	riscvFile := args[0]

	f, err := os.Open(riscvFile)
	if err != nil {
		return err
	}
	defer f.Close()

	functions := interp.FunctionNameSet(interp.DefaultFunctions)
	prog, err := parse.Parse(f, functions)
	if err != nil {
		return err
	}

	pol := policy.Default(interp.DefaultFunctions)
	in, err := interp.New(prog.Instructions, prog.Labels, pol, machine.DefaultMemSize, machine.DefaultStackSize)
	if err != nil {
		return err
	}

	sanitized := strings.ReplaceAll(strings.TrimSuffix(filepath.Base(riscvFile), filepath.Ext(riscvFile)), "/", "_")
	jar := filepath.Join(pickleCabinet, "jar_"+sanitized)
	store, err := snapshot.Open(jar, "state")
	if err != nil {
		return err
	}

	for {
		cont, err := in.Step()
		if err != nil {
			return err
		}
		if _, err := store.Save(in); err != nil {
			return err
		}
		if !cont {
			break
		}
	}

	a0, err := in.State.GetReg("a0")
	if err != nil {
		return err
	}
	logrus.WithField("a0", a0).Info("execution finished")
	return nil
}
