package core

// sanitizer.go repairs a table so every row has the same width.
//
// Repairs never lose data: short rows are padded with empty cells and the
// surplus cells of long rows are joined back into the last column with the
// active delimiter. Every repair is recorded as a fixed Issue that points at
// the row's original position.

import (
	"fmt"
	"strings"
)

// Sanitize returns a copy of t in which every surviving row has exactly
// width cells, plus one fixed Issue per repaired or removed row.
func Sanitize(t Table, width int, delim rune) (Table, []Issue) {
	out := Table{Rows: make([]Row, 0, len(t.Rows))}
	var issues []Issue

	for _, row := range t.Rows {
		n := row.Len()

		switch {
		case row.IsEmpty():
			issues = append(issues, Issue{
				Type:        IssueEmptyRowRemoved,
				Row:         intPtr(row.Num),
				Severity:    SeverityInfo,
				Description: "Empty row removed during sanitize.",
				Fixed:       true,
			})
			continue

		case n == width:
			out.Rows = append(out.Rows, row)

		case n < width:
			cells := make([]Cell, width)
			copy(cells, row.Cells)
			for i := n; i < width; i++ {
				cells[i] = Text("")
			}
			out.Rows = append(out.Rows, Row{Num: row.Num, Cells: cells})
			issues = append(issues, Issue{
				Type:     IssueRowPadded,
				Row:      intPtr(row.Num),
				Column:   intPtr(n + 1),
				Severity: SeverityWarning,
				Description: fmt.Sprintf("Row had %d columns; padded with %d empty cell(s) to match expected %d.",
					n, width-n, width),
				Fixed: true,
			})

		default:
			out.Rows = append(out.Rows, Row{Num: row.Num, Cells: mergeTail(row.Cells, width, delim)})
			issues = append(issues, Issue{
				Type:     IssueRowTruncated,
				Row:      intPtr(row.Num),
				Column:   intPtr(width),
				Severity: SeverityWarning,
				Description: fmt.Sprintf("Row had %d columns; merged surplus cells into the last column to match expected %d.",
					n, width),
				Fixed: true,
			})
		}
	}

	return out, issues
}

// mergeTail keeps the first width-1 cells and joins the rest into one cell.
func mergeTail(cells []Cell, width int, delim rune) []Cell {
	keep := width - 1
	if keep < 0 {
		keep = 0
	}
	out := make([]Cell, 0, keep+1)
	out = append(out, cells[:keep]...)

	tail := make([]string, 0, len(cells)-keep)
	for _, c := range cells[keep:] {
		tail = append(tail, c.Value)
	}
	return append(out, Text(strings.Join(tail, string(delim))))
}
