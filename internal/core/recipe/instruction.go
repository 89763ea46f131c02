// Package recipe contains the pure business logic for recipe handling:
// instruction parsing, the line source, and pre-flight validation.
// This is part of the Functional Core - no I/O, only pure functions.
package recipe

// Opcode identifies the action an instruction dispatches.
// An opcode is the first four characters of the first recipe field.
type Opcode string

const (
	OpPort Opcode = "PORT" // select a reagent valve port
	OpPump Opcode = "PUMP" // pump a volume at reagent speed
	OpHold Opcode = "HOLD" // incubate for a number of minutes
	OpWait Opcode = "WAIT" // rendezvous with the partner flowcell
	OpImag Opcode = "IMAG" // image every section at n z planes
	OpStop Opcode = "STOP" // halt until operator acknowledgment
)

// Known reports whether the opcode is part of the fixed vocabulary.
// Parsing does not reject unknown opcodes; validation does.
func (op Opcode) Known() bool {
	switch op {
	case OpPort, OpPump, OpHold, OpWait, OpImag, OpStop:
		return true
	}
	return false
}

// Instruction is one parsed recipe line.
type Instruction struct {
	Op      Opcode
	Operand string
	Line    int // 1-based source line number
}
