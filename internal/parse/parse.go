// Package parse turns assembly text into the instruction/label tables the
// interpreter core consumes (spec.md §6). The parser itself is an
// external collaborator per spec.md §1 — the core only cares that it
// produces a []isa.Instruction and a label table matching spec.md §6's
// grammar — but a minimal implementation lives here so the module is
// runnable end to end.
package parse

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Terminator-Canaries/tainty-thing/pkg/isa"
	"github.com/Terminator-Canaries/tainty-thing/pkg/operand"
)

// Program is the result of parsing one assembly file: the decoded
// instruction sequence and its label table (spec.md §3's Block Label
// Table).
type Program struct {
	Instructions []isa.Instruction
	Labels       map[string]int
}

// Parse reads assembly text from r and classifies it per spec.md §6's
// grammar. functions is the set of external-function names (spec.md §6);
// membership participates in operand classification priority 4.
func Parse(r io.Reader, functions map[string]bool) (*Program, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]int)
	var instrLines []instrLine
	idx := 0
	for _, ln := range lines {
		text := strings.TrimSpace(ln.text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			continue
		}
		if strings.HasPrefix(text, ".") && !strings.Contains(text, ":") {
			continue
		}
		if i := strings.Index(text, ":"); i >= 0 {
			label := strings.TrimSpace(text[:i])
			if label != "" {
				labels[label] = idx
			}
			continue
		}
		instrLines = append(instrLines, instrLine{text: text, source: ln.source})
		idx++
	}

	instructions := make([]isa.Instruction, 0, len(instrLines))
	for _, il := range instrLines {
		instr, err := parseInstruction(il, labels, functions)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, instr)
	}

	return &Program{Instructions: instructions, Labels: labels}, nil
}

type instrLine struct {
	text   string
	source int
}

type rawLine struct {
	text   string
	source int
}

func readLines(r io.Reader) ([]rawLine, error) {
	scanner := bufio.NewScanner(r)
	var out []rawLine
	n := 0
	for scanner.Scan() {
		n++
		out = append(out, rawLine{text: scanner.Text(), source: n})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse: reading input: %w", err)
	}
	return out, nil
}

func parseInstruction(il instrLine, labels map[string]int, functions map[string]bool) (isa.Instruction, error) {
	fields := strings.Fields(il.text)
	if len(fields) == 0 {
		return isa.Instruction{}, fmt.Errorf("parse: line %d: empty instruction", il.source)
	}
	opcode := strings.TrimSuffix(fields[0], ",")
	ops := make([]operand.Operand, 0, len(fields)-1)
	for _, tok := range fields[1:] {
		tok = strings.TrimSuffix(tok, ",")
		if tok == "" {
			continue
		}
		op, err := operand.Classify(tok, labels, functions)
		if err != nil {
			return isa.Instruction{}, fmt.Errorf("parse: line %d: %w", il.source, err)
		}
		ops = append(ops, op)
	}
	return isa.Instruction{Opcode: opcode, Operands: ops, SourceLine: il.source}, nil
}
