package core

// Version is reported in every result's meta block.
const Version = "0.2.0"

// Mode selects which stage plan the pipeline runs.
type Mode string

const (
	ModeEscape   Mode = "escape"
	ModeSanitize Mode = "sanitize"
	ModeAnalyze  Mode = "analyze"
)

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeEscape, ModeSanitize, ModeAnalyze:
		return true
	}
	return false
}

// Cell is a single parsed field.
// Null is set only for unquoted empty fields; a quoted "" is an ordinary empty string.
type Cell struct {
	Value string
	Null  bool
}

// Text returns a non-null cell holding s.
func Text(s string) Cell {
	return Cell{Value: s}
}

// Row is an ordered sequence of cells. Num is the 1-based position the row
// had in the parsed input and survives any later repair.
type Row struct {
	Num   int
	Cells []Cell
}

// Len returns the number of cells in the row.
func (r Row) Len() int {
	return len(r.Cells)
}

// IsEmpty reports whether the row has no cells or exactly one empty cell.
func (r Row) IsEmpty() bool {
	return len(r.Cells) == 0 || (len(r.Cells) == 1 && r.Cells[0].Value == "")
}

// Values returns the cell values as plain strings.
func (r Row) Values() []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.Value
	}
	return out
}

// Table is an owned, indexable sequence of rows in source order.
type Table struct {
	Rows []Row
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Truncate keeps at most n rows and returns how many were dropped.
// n <= 0 keeps everything.
func (t *Table) Truncate(n int) int {
	if n <= 0 || len(t.Rows) <= n {
		return 0
	}
	dropped := len(t.Rows) - n
	t.Rows = t.Rows[:n]
	return dropped
}

// Strings returns the table as a [][]string, mostly useful in tests and reports.
func (t Table) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values()
	}
	return out
}

// IssueType classifies a structural diagnostic.
type IssueType string

const (
	IssueEmptyRowRemoved     IssueType = "EMPTY_ROW_REMOVED"
	IssueRowPadded           IssueType = "ROW_PADDED"
	IssueRowTruncated        IssueType = "ROW_TRUNCATED"
	IssueColumnCountMismatch IssueType = "COLUMN_COUNT_MISMATCH"
)

// Severity is the importance of an Issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue describes a detected or repaired structural anomaly.
// Row always refers to the original (pre-repair) 1-based row number.
type Issue struct {
	Type        IssueType `json:"type"`
	Row         *int      `json:"row"`
	Column      *int      `json:"column"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Fixed       bool      `json:"fixed"`
}

// ColumnStats summarizes the shape of a table.
type ColumnStats struct {
	Rows               int     `json:"rows"`
	ColumnsMin         int     `json:"columns_min"`
	ColumnsMax         int     `json:"columns_max"`
	ColumnsMode        int     `json:"columns_mode"`
	FixedIssuesCount   int     `json:"fixed_issues_count"`
	UnfixedIssuesCount int     `json:"unfixed_issues_count"`
	DelimiterDetected  *string `json:"delimiter_detected"`
	HasHeader          *bool   `json:"has_header"`
}

// countIssues fills the fixed/unfixed counters from issues.
func (s *ColumnStats) countIssues(issues []Issue) {
	s.FixedIssuesCount, s.UnfixedIssuesCount = 0, 0
	for _, is := range issues {
		if is.Fixed {
			s.FixedIssuesCount++
		} else {
			s.UnfixedIssuesCount++
		}
	}
}

// Request is the decoded input to Process.
type Request struct {
	Mode      Mode
	Text      string
	Profile   string
	Overrides map[string]any

	// SampleLines bounds delimiter detection; zero uses DefaultSampleLines.
	SampleLines int
}

// Meta carries everything about how a result was produced.
type Meta struct {
	Version              string        `json:"version"`
	Profile              string        `json:"profile"`
	ModeUsed             Mode          `json:"mode_used"`
	EffectiveConfig      ProfileConfig `json:"effective_config"`
	StructureStatsBefore ColumnStats   `json:"structure_stats_before"`
	Sanitized            bool          `json:"sanitized"`
	RowsTruncated        int           `json:"rows_truncated"`
	Stages               []State       `json:"stages"`
}

// Result is the output of one Process invocation.
type Result struct {
	CSVText string      `json:"csv_text"`
	Issues  []Issue     `json:"issues"`
	Stats   ColumnStats `json:"stats"`
	Meta    Meta        `json:"meta"`
}

func intPtr(i int) *int {
	return &i
}

func strPtr(s string) *string {
	return &s
}
