package recipe

import (
	"fmt"
	"strconv"
	"strings"
)

// Violation is a single pre-flight rule failure tied to a recipe line.
type Violation struct {
	Line int
	Msg  string
}

func (v Violation) String() string {
	return fmt.Sprintf("line %d: %s", v.Line, v.Msg)
}

// CheckErrors aggregates every violation found across a whole recipe.
// Validation never stops at the first failure.
type CheckErrors []Violation

func (ce CheckErrors) Error() string {
	msgs := make([]string, len(ce))
	for i, v := range ce {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("%d errors in recipe: %s", len(ce), strings.Join(msgs, "; "))
}

// CheckOptions configures pre-flight validation.
type CheckOptions struct {
	// ValidPorts is the set of names a PORT instruction may select:
	// configured reagents plus variable reagent names.
	ValidPorts map[string]bool

	// FirstPort, when set, marks where cycle one should begin. A value
	// that parses as an integer is itself the resume line; otherwise the
	// first PORT instruction whose operand contains it is the resume
	// point.
	FirstPort string
}

// CheckResult carries the outcome of a successful validation.
type CheckResult struct {
	// ResumeLine is the 1-based line cycle one starts from.
	ResumeLine int

	// StopLines lists lines holding STOP instructions. STOP is valid but
	// halts the whole instrument until operator acknowledgment, so the
	// operator is warned up front.
	StopLines []int
}

// Check validates every instruction in the recipe against the
// configured ports and reports all violations together. It either
// returns a resume line with no error, or CheckErrors listing each
// failure; it never partially applies.
func Check(r *Recipe, opts CheckOptions) (CheckResult, error) {
	result := CheckResult{ResumeLine: 1}
	firstPort := opts.FirstPort
	if firstPort != "" {
		if n, err := strconv.Atoi(firstPort); err == nil {
			// An integer hint is an explicit resume line, not a reagent.
			result.ResumeLine = n
			firstPort = ""
		}
	}
	resumeFound := result.ResumeLine > 1

	var errs CheckErrors
	for num := 1; num <= r.Len(); num++ {
		ins, err := Parse(r.lines[num-1], num)
		if err != nil {
			errs = append(errs, Violation{Line: num, Msg: "malformed line, need two tab-delimited fields"})
			continue
		}

		switch ins.Op {
		case OpPort:
			if !opts.ValidPorts[ins.Operand] {
				errs = append(errs, Violation{Line: num, Msg: fmt.Sprintf("port %q does not exist", ins.Operand)})
			}
			if !resumeFound && firstPort != "" && strings.Contains(ins.Operand, firstPort) {
				result.ResumeLine = num
				resumeFound = true
			}
		case OpPump:
			if !isUint(ins.Operand) {
				errs = append(errs, Violation{Line: num, Msg: fmt.Sprintf("invalid pump volume %q", ins.Operand)})
			}
		case OpWait:
			if !opts.ValidPorts[ins.Operand] && ins.Operand != string(OpImag) && ins.Operand != string(OpStop) {
				errs = append(errs, Violation{Line: num, Msg: fmt.Sprintf("invalid wait event %q", ins.Operand)})
			}
		case OpImag:
			if !isUint(ins.Operand) {
				errs = append(errs, Violation{Line: num, Msg: fmt.Sprintf("invalid z plane count %q", ins.Operand)})
			}
		case OpHold:
			if v, err := strconv.ParseFloat(ins.Operand, 64); err != nil || v < 0 {
				errs = append(errs, Violation{Line: num, Msg: fmt.Sprintf("invalid hold time %q", ins.Operand)})
			}
		case OpStop:
			result.StopLines = append(result.StopLines, num)
		default:
			errs = append(errs, Violation{Line: num, Msg: fmt.Sprintf("bad instruction name %q", ins.Op)})
		}
	}

	if len(errs) > 0 {
		return CheckResult{}, errs
	}
	return result, nil
}

// isUint reports whether s is a plain non-negative integer (digits
// only, no sign).
func isUint(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
