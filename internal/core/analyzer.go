package core

// analyzer.go computes column statistics and reports rows whose width
// disagrees with the rest of the table. It never changes the table.

import "fmt"

// AnalyzeStructure computes ColumnStats over the non-empty rows of t and
// returns a COLUMN_COUNT_MISMATCH warning for every non-empty row whose
// length differs from the modal column count.
//
// Rows with no cells or a single empty cell are treated as empty: they do
// not contribute to the stats and are left for the sanitizer to remove.
// hasHeader is reported as given; no header inference happens here.
func AnalyzeStructure(t Table, delim rune, hasHeader *bool) (ColumnStats, []Issue) {
	stats := ColumnStats{
		DelimiterDetected: strPtr(string(delim)),
		HasHeader:         hasHeader,
	}

	freq := make(map[int]int)
	for _, row := range t.Rows {
		if row.IsEmpty() {
			continue
		}
		n := row.Len()
		if stats.Rows == 0 || n < stats.ColumnsMin {
			stats.ColumnsMin = n
		}
		if n > stats.ColumnsMax {
			stats.ColumnsMax = n
		}
		freq[n]++
		stats.Rows++
	}
	if stats.Rows == 0 {
		return stats, nil
	}
	stats.ColumnsMode, _ = modal(freq)

	var issues []Issue
	for _, row := range t.Rows {
		if row.IsEmpty() || row.Len() == stats.ColumnsMode {
			continue
		}
		issues = append(issues, Issue{
			Type:     IssueColumnCountMismatch,
			Row:      intPtr(row.Num),
			Severity: SeverityWarning,
			Description: fmt.Sprintf("Row has %d columns (expected %d). No automatic fix in this step.",
				row.Len(), stats.ColumnsMode),
		})
	}
	stats.countIssues(issues)
	return stats, issues
}

// modal returns the most frequent key in freq and its count.
// Ties are broken toward the larger key. An empty map yields (0, 0).
func modal(freq map[int]int) (mode, count int) {
	for k, n := range freq {
		if n > count || (n == count && k > mode) {
			mode, count = k, n
		}
	}
	return mode, count
}
