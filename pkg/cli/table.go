package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/term"
)

const columnGap = 2

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Table renders column-aligned output. Rows are buffered until Flush so
// column widths can be capped to the terminal; cells in a capped column
// wrap onto extra lines. Empty tables produce no output.
type Table struct {
	out     io.Writer
	headers []string
	rows    [][]string
	prefix  string
	width   int
}

// NewTable creates a table with the given column headers, writing to stdout.
func NewTable(headers ...string) *Table {
	return &Table{out: os.Stdout, headers: headers, width: terminalWidth(os.Stdout)}
}

// WithWriter redirects output. Output to a non-terminal is never capped.
func (t *Table) WithWriter(w io.Writer) *Table {
	t.out = w
	t.width = terminalWidth(w)
	return t
}

// WithWidth caps the total line width; 0 disables capping.
func (t *Table) WithWidth(width int) *Table {
	t.width = width
	return t
}

// WithPrefix sets a string prepended to each line (headers, divider, rows).
// Useful for indenting sub-tables within larger output.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// Row buffers one row.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Flush writes the table. If no rows were added, nothing is printed.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, r := range t.rows {
		for i := 0; i < len(r) && i < len(widths); i++ {
			if n := visualLen(r[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	if t.width > 0 {
		widths = capWidths(widths, t.headers, t.width, visualLen(t.prefix))
	}

	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visualLen(h))
	}
	t.writeRow(widths, t.headers)
	t.writeRow(widths, dividers)
	for _, r := range t.rows {
		t.writeRow(widths, r)
	}
	t.rows = nil
}

func (t *Table) writeRow(widths []int, values []string) {
	cells := make([][]string, len(widths))
	lines := 1
	for i := range widths {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		cells[i] = wrapCell(v, widths[i])
		if len(cells[i]) > lines {
			lines = len(cells[i])
		}
	}

	for l := 0; l < lines; l++ {
		var b strings.Builder
		b.WriteString(t.prefix)
		for i, cell := range cells {
			s := ""
			if l < len(cell) {
				s = cell[l]
			}
			if i == len(cells)-1 {
				b.WriteString(s)
				break
			}
			b.WriteString(s)
			b.WriteString(strings.Repeat(" ", widths[i]-visualLen(s)+columnGap))
		}
		fmt.Fprintln(t.out, strings.TrimRight(b.String(), " "))
	}
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// capWidths shrinks the widest columns until the line fits termWidth.
// No column goes below the width of its header.
func capWidths(widths []int, headers []string, termWidth, prefix int) []int {
	out := append([]int(nil), widths...)
	total := func() int {
		n := prefix + columnGap*(len(out)-1)
		for _, w := range out {
			n += w
		}
		return n
	}

	for excess := total() - termWidth; excess > 0; excess = total() - termWidth {
		widest := -1
		for i, w := range out {
			if w > visualLen(headers[i]) && (widest < 0 || w > out[widest]) {
				widest = i
			}
		}
		if widest < 0 {
			break
		}
		cut := out[widest] - visualLen(headers[widest])
		if cut > excess {
			cut = excess
		}
		out[widest] -= cut
	}
	return out
}

// visualLen is the printed width of s, ignoring ANSI color codes.
func visualLen(s string) int {
	return len([]rune(ansiPattern.ReplaceAllString(s, "")))
}

// wrapCell splits s into lines of at most width runes, breaking at spaces
// and hard-breaking words longer than width. Color codes are dropped from
// wrapped cells; a cell that fits is returned unchanged.
func wrapCell(s string, width int) []string {
	if width <= 0 || visualLen(s) <= width {
		return []string{s}
	}

	var lines []string
	cur := []rune{}
	for _, word := range strings.Fields(ansiPattern.ReplaceAllString(s, "")) {
		w := []rune(word)
		for len(w) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = cur[:0]
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(w) == 0:
		case len(cur) == 0:
			cur = append(cur, w...)
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			lines = append(lines, string(cur))
			cur = append([]rune(nil), w...)
		}
	}
	if len(cur) > 0 || len(lines) == 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
