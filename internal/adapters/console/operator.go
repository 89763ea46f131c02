// Package console implements the operator port on the terminal.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Operator prompts the person tending the instrument on the terminal.
type Operator struct {
	in  *bufio.Reader
	out io.Writer
}

// New creates an operator console on stdin/stdout.
func New() *Operator {
	return &Operator{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewWithIO creates an operator console on the given streams, for tests.
func NewWithIO(in io.Reader, out io.Writer) *Operator {
	return &Operator{in: bufio.NewReader(in), out: out}
}

// Acknowledge blocks until the operator presses enter.
func (o *Operator) Acknowledge(msg string) error {
	fmt.Fprintf(o.out, "%s %s\n", color.New(color.FgYellow).Sprint("!"), msg)
	fmt.Fprint(o.out, "Press enter to continue... ")
	if _, err := o.in.ReadString('\n'); err != nil {
		return fmt.Errorf("failed to read acknowledgment: %w", err)
	}
	return nil
}

// Confirm asks a yes/no question. Anything but y/yes counts as no.
func (o *Operator) Confirm(msg string) (bool, error) {
	fmt.Fprintf(o.out, "%s %s [y/N]: ", color.New(color.FgCyan).Sprint("?"), msg)
	line, err := o.in.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Notify shows a message without waiting.
func (o *Operator) Notify(msg string) {
	fmt.Fprintf(o.out, "%s %s\n", color.New(color.FgGreen).Sprint("*"), msg)
}
