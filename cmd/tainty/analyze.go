package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/Terminator-Canaries/tainty-thing/pkg/interp"
	"github.com/Terminator-Canaries/tainty-thing/pkg/policy"
	"github.com/Terminator-Canaries/tainty-thing/pkg/snapshot"
)

// runAnalyze implements spec.md §6's "analyze --pickle_jar=<dir>
// [--register_graph] [--memory_graph]". Graph *rendering* is the one
// explicitly out-of-scope collaborator (spec.md §1/§6); what the core
// exposes instead is the percentage_tainted_{registers,memory} series
// itself, written as CSV under <jar>/data/ for that collaborator to plot
// (SPEC_FULL.md §6.3).
func runAnalyze(pickleJar string, registerGraph, memoryGraph bool) error {
	if pickleJar == "" {
		return fmt.Errorf("usage: tainty analyze --pickle_jar=<dir> [--register_graph] [--memory_graph]")
	}
	store, err := snapshot.Open(pickleJar, "state")
	if err != nil {
		return err
	}
	slots, err := store.List()
	if err != nil {
		return err
	}

	// Analysis never re-executes anything, so the exact policy identity
	// doesn't matter; the default is enough to satisfy snapshot.Load's
	// "re-inject a policy" contract (spec.md §9).
	pol := policy.Default(interp.DefaultFunctions)

	registerPct := make([]float64, 0, len(slots))
	memoryPct := make([]float64, 0, len(slots))
	for _, slot := range slots {
		in, err := snapshot.Load(filepath.Join(pickleJar, "pickles", slot), pol)
		if err != nil {
			return err
		}
		registerPct = append(registerPct, in.Shadow.PercentageTaintedRegisters())
		memoryPct = append(memoryPct, in.Shadow.PercentageTaintedMemory())
	}
	logrus.WithField("count", len(slots)).Info("loaded snapshots")

	if registerGraph {
		if err := writeSeries(filepath.Join(pickleJar, "data", "registers_taint.csv"), registerPct); err != nil {
			return err
		}
	}
	if memoryGraph {
		if err := writeSeries(filepath.Join(pickleJar, "data", "memory_taint.csv"), memoryPct); err != nil {
			return err
		}
	}
	return nil
}

func writeSeries(path string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for i, v := range values {
		if _, err := fmt.Fprintf(f, "%d,%f\n", i, v); err != nil {
			return err
		}
	}
	return nil
}
