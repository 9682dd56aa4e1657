package ctl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// table accumulates rows and prints them with aligned columns. Widths are
// measured with lipgloss so styled cells line up.
type table struct {
	out    io.Writer
	indent string
	header []string
	rows   [][]string
	right  map[int]bool
}

func newTable(indent string, columns ...string) *table {
	return &table{
		out:    os.Stdout,
		indent: indent,
		header: columns,
		right:  make(map[int]bool),
	}
}

// alignRight right-aligns the given column.
func (t *table) alignRight(col int) {
	t.right[col] = true
}

func (t *table) row(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) flush() {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range t.rows {
		for i, c := range r {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(c))
			}
		}
	}

	t.print(t.header, widths, bold)
	total := 0
	for _, w := range widths {
		total += w + 2
	}
	fmt.Fprintln(t.out, dim.Render(t.indent+strings.Repeat("─", max(0, total-2))))
	for _, r := range t.rows {
		t.print(r, widths, lipgloss.NewStyle())
	}
}

func (t *table) print(cells []string, widths []int, style lipgloss.Style) {
	var b strings.Builder
	b.WriteString(t.indent)
	for i, w := range widths {
		c := ""
		if i < len(cells) {
			c = style.Render(cells[i])
		}
		pad := strings.Repeat(" ", max(0, w-lipgloss.Width(c)))
		if t.right[i] {
			b.WriteString(pad + c)
		} else {
			b.WriteString(c + pad)
		}
		if i < len(widths)-1 {
			b.WriteString("  ")
		}
	}
	fmt.Fprintln(t.out, strings.TrimRight(b.String(), " "))
}
