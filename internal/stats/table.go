package stats

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// maxCellWidth caps a column so long session and device names do not push
// the counts off screen.
const maxCellWidth = 32

// table lays out rows in aligned columns measured in terminal cells.
type table struct {
	headers []string
	rows    [][]string
	right   map[int]bool
	widths  []int
}

func formatTable(headers []string, rows [][]string, rightAlignCols map[int]bool) []string {
	t := &table{headers: headers, right: rightAlignCols}
	for _, row := range rows {
		t.rows = append(t.rows, clipRow(row))
	}
	t.measure()
	if len(t.widths) == 0 {
		return nil
	}
	lines := make([]string, 0, len(t.rows)+1)
	if len(headers) > 0 {
		lines = append(lines, t.line(headers))
	}
	for _, row := range t.rows {
		lines = append(lines, t.line(row))
	}
	return lines
}

func clipRow(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = runewidth.Truncate(cell, maxCellWidth, "…")
	}
	return out
}

func (t *table) measure() {
	cols := len(t.headers)
	for _, row := range t.rows {
		cols = max(cols, len(row))
	}
	t.widths = make([]int, cols)
	grow := func(row []string) {
		for i, cell := range row {
			t.widths[i] = max(t.widths[i], runewidth.StringWidth(cell))
		}
	}
	grow(t.headers)
	for _, row := range t.rows {
		grow(row)
	}
}

func (t *table) line(row []string) string {
	cells := make([]string, len(t.widths))
	for i, width := range t.widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if t.right[i] {
			cells[i] = runewidth.FillLeft(cell, width)
		} else {
			cells[i] = runewidth.FillRight(cell, width)
		}
	}
	return strings.Join(cells, " ")
}
