package recipe

import (
	"fmt"
	"strings"
)

const (
	commentMarker  = "#"
	fieldDelimiter = "\t"
)

// LineError reports a recipe line that cannot be split into an
// opcode field and an operand field.
type LineError struct {
	Line int
	Text string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("malformed recipe line %d: need two tab-delimited fields", e.Line)
}

// Parse turns one raw recipe line into an Instruction.
// Everything from the first comment marker onward is discarded, the
// remainder is split on a single tab, the opcode is the first four
// characters of field one and the operand is field two with all
// whitespace removed. Unknown opcodes are not rejected here.
func Parse(line string, num int) (Instruction, error) {
	body, _, _ := strings.Cut(line, commentMarker)
	fields := strings.Split(body, fieldDelimiter)
	if len(fields) < 2 {
		return Instruction{}, &LineError{Line: num, Text: line}
	}

	op := fields[0]
	if len(op) > 4 {
		op = op[:4]
	}
	operand := strings.ReplaceAll(fields[1], " ", "")
	operand = strings.TrimRight(operand, "\r\n")

	return Instruction{Op: Opcode(op), Operand: operand, Line: num}, nil
}
