package secondary

// Operator defines the secondary port for operator interaction: the
// inline STOP acknowledgment, yes/no prompts around line flushes, and
// plain notices.
type Operator interface {
	// Acknowledge blocks until the operator confirms the message. Used
	// by STOP, the one opcode that intentionally halts the whole
	// instrument.
	Acknowledge(msg string) error

	// Confirm asks a yes/no question and reports the answer.
	Confirm(msg string) (bool, error)

	// Notify shows a message without waiting.
	Notify(msg string)
}
