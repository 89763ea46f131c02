// Package reagent contains the pure business logic for reagent port
// mapping, including per-cycle variable reagents.
// This is part of the Functional Core - no I/O, only pure functions.
package reagent

import (
	"fmt"
	"sort"
	"strings"
)

// CycleReagent assigns a reagent to a variable name for one cycle.
type CycleReagent struct {
	Variable string
	Cycle    int
	Reagent  string
}

// ConfigErrors aggregates every port configuration problem found while
// building a Dictionary. Building never stops at the first failure.
type ConfigErrors []string

func (ce ConfigErrors) Error() string {
	return fmt.Sprintf("%d errors in port configuration: %s", len(ce), strings.Join(ce, "; "))
}

// ResolutionError reports an operand that could not be resolved to a
// valve port at runtime. Validation accepts only resolvable names, so
// hitting this during execution is a contract breach and fatal to the
// issuing flowcell.
type ResolutionError struct {
	Name  string
	Cycle int
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve port %q for cycle %d", e.Name, e.Cycle)
}

// Dictionary maps reagent names to valve ports, plus variable names to
// their per-cycle reagent. Built once before the scheduler starts and
// read-only afterward.
type Dictionary struct {
	fixed    map[string]int
	variable map[string]map[int]string
}

// BuildInput is the port configuration a Dictionary is built from.
type BuildInput struct {
	// Valve maps port number to reagent name.
	Valve map[int]string

	// Variables lists reagent names in the recipe that change per cycle.
	Variables []string

	// CycleReagents assigns a concrete reagent to each (variable, cycle).
	CycleReagents []CycleReagent

	// TotalCycles is the experiment cycle count; every variable must
	// cover exactly this many cycles.
	TotalCycles int
}

// Build constructs a Dictionary, collecting every configuration error
// rather than stopping at the first.
func Build(in BuildInput) (*Dictionary, error) {
	var errs ConfigErrors

	names := make(map[string]bool, len(in.Valve))
	for _, name := range in.Valve {
		if names[name] {
			errs = append(errs, fmt.Sprintf("reagent name %q is not unique on the valve", name))
		}
		names[name] = true
	}

	d := &Dictionary{
		fixed:    make(map[string]int, len(in.Valve)),
		variable: make(map[string]map[int]string, len(in.Variables)),
	}
	for port, name := range in.Valve {
		d.fixed[name] = port
	}

	for _, v := range in.Variables {
		if _, clash := d.fixed[v]; clash {
			errs = append(errs, fmt.Sprintf("variable %q cannot also be a reagent", v))
			continue
		}
		d.variable[v] = make(map[int]string)
	}

	for _, cr := range in.CycleReagents {
		if !names[cr.Reagent] {
			errs = append(errs, fmt.Sprintf("cycle reagent %q does not exist on the valve", cr.Reagent))
			continue
		}
		table, ok := d.variable[cr.Variable]
		if !ok {
			errs = append(errs, fmt.Sprintf("%q is not listed as a variable reagent", cr.Variable))
			continue
		}
		table[cr.Cycle] = cr.Reagent
	}

	for _, v := range in.Variables {
		if table, ok := d.variable[v]; ok && len(table) != in.TotalCycles {
			errs = append(errs, fmt.Sprintf("variable %q covers %d cycles, want %d", v, len(table), in.TotalCycles))
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return d, nil
}

// IsVariable reports whether name changes reagent per cycle.
func (d *Dictionary) IsVariable(name string) bool {
	_, ok := d.variable[name]
	return ok
}

// Resolve maps a recipe operand to the concrete reagent name and valve
// port for the given cycle. Fixed reagents resolve to themselves.
func (d *Dictionary) Resolve(name string, cycle int) (reagent string, port int, err error) {
	if table, ok := d.variable[name]; ok {
		r, ok := table[cycle]
		if !ok {
			return "", 0, &ResolutionError{Name: name, Cycle: cycle}
		}
		name = r
	}
	port, ok := d.fixed[name]
	if !ok {
		return "", 0, &ResolutionError{Name: name, Cycle: cycle}
	}
	return name, port, nil
}

// Names returns every selectable name: fixed reagents and variables.
// This is the valid port set for recipe validation.
func (d *Dictionary) Names() map[string]bool {
	set := make(map[string]bool, len(d.fixed)+len(d.variable))
	for name := range d.fixed {
		set[name] = true
	}
	for name := range d.variable {
		set[name] = true
	}
	return set
}

// FixedNames returns the fixed reagent names in port order, for line
// priming and shutdown flushes.
func (d *Dictionary) FixedNames() []string {
	names := make([]string, 0, len(d.fixed))
	for name := range d.fixed {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return d.fixed[names[i]] < d.fixed[names[j]] })
	return names
}
