package recipe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Recipe is an ordered, restartable sequence of raw recipe lines.
// The backing lines are loaded once and never modified; a cursor
// supports reading forward, skipping lines once for a first-cycle
// resume, and rewinding to line one for every later cycle.
type Recipe struct {
	lines  []string
	cursor int
}

// Load reads a recipe from a line-oriented text file.
func Load(path string) (*Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipe: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read reads a recipe from r.
func Read(r io.Reader) (*Recipe, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	return &Recipe{lines: lines}, nil
}

// FromLines builds a recipe directly from lines, for tests and
// validation of in-memory sequences.
func FromLines(lines []string) *Recipe {
	return &Recipe{lines: append([]string(nil), lines...)}
}

// Clone returns a recipe sharing the same immutable lines but with an
// independent cursor. Each flowcell progresses through its own clone.
func (r *Recipe) Clone() *Recipe {
	return &Recipe{lines: r.lines}
}

// Next returns the next raw line and its 1-based line number.
// ok is false once the cursor has passed the final line.
func (r *Recipe) Next() (line string, num int, ok bool) {
	if r.cursor >= len(r.lines) {
		return "", 0, false
	}
	r.cursor++
	return r.lines[r.cursor-1], r.cursor, true
}

// Skip discards up to n lines without returning them.
func (r *Recipe) Skip(n int) {
	r.cursor += n
	if r.cursor > len(r.lines) {
		r.cursor = len(r.lines)
	}
}

// Rewind moves the cursor back to line one.
func (r *Recipe) Rewind() {
	r.cursor = 0
}

// Len returns the number of lines in the recipe.
func (r *Recipe) Len() int {
	return len(r.lines)
}
