package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Terminator-Canaries/tainty-thing/pkg/interp"
	"github.com/Terminator-Canaries/tainty-thing/pkg/policy"
	"github.com/Terminator-Canaries/tainty-thing/pkg/snapshot"
)

// runBacktrack implements spec.md §6's "backtrack <snapshot_path>": load
// one snapshot and drive it to completion, independent of whatever
// interpreter originally produced it (original_source/backtrack.py's
// fetch_interpreter, adapted).
func runBacktrack(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: tainty backtrack <snapshot_path>")
	}
	pol := policy.Default(interp.DefaultFunctions)
	in, err := snapshot.Load(args[0], pol)
	if err != nil {
		return err
	}
	if err := in.Run(); err != nil {
		return err
	}
	a0, err := in.State.GetReg("a0")
	if err != nil {
		return err
	}
	logrus.WithField("a0", a0).Info("backtrack finished")
	return nil
}
