// Command tainty is the CLI front-end of spec.md §6: a dispatcher over
// the "interpret", "backtrack", and "analyze" subcommands. Flag parsing
// follows rcornwell-S370/main.go's use of github.com/pborman/getopt/v2 —
// one package-level flag set, parsed once — and its pattern of building a
// single logger up front and threading it through the rest of the
// program, here via github.com/sirupsen/logrus instead of log/slog (see
// SPEC_FULL.md §6.1).
package main

import (
	"fmt"
	"os"

	getopt "github.com/pborman/getopt/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	verbose := getopt.BoolLong("verbose", 'v', "trace every step")
	debug := getopt.BoolLong("debug", 'd', "enable debug logging")
	pickleJar := getopt.StringLong("pickle_jar", 'j', "", "path to a pickle jar (analyze)")
	registerGraph := getopt.BoolLong("register_graph", 0, "emit percentage_tainted_registers series (analyze)")
	memoryGraph := getopt.BoolLong("memory_graph", 0, "emit percentage_tainted_memory series (analyze)")
	help := getopt.BoolLong("help", 'h', "show usage")
	getopt.Parse()

	if *help {
		usage()
		return
	}
	if *debug || *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	rest := getopt.Args()
	if len(rest) < 1 {
		usage()
		os.Exit(1)
	}

	var err error
	switch rest[0] {
	case "interpret":
		err = runInterpret(rest[1:])
	case "backtrack":
		err = runBacktrack(rest[1:])
	case "analyze":
		err = runAnalyze(*pickleJar, *registerGraph, *memoryGraph)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		logrus.WithError(err).Error("tainty: fatal")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tainty [-v] [-d] <subcommand> [args]")
	fmt.Fprintln(os.Stderr, "  interpret <riscv_file>")
	fmt.Fprintln(os.Stderr, "  backtrack <snapshot_path>")
	fmt.Fprintln(os.Stderr, "  analyze --pickle_jar=<dir> [--register_graph] [--memory_graph]")
}
