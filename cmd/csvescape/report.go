package main

import (
	"fmt"
	"io"

	"github.com/JonMunkholm/csvescape/internal/core"
	"github.com/fatih/color"
)

const (
	severityWidth = 7
	typeWidth     = 24
	locWidth      = 14
)

var severityPaint = map[core.Severity]func(format string, a ...interface{}) string{
	core.SeverityError:   color.RedString,
	core.SeverityWarning: color.YellowString,
	core.SeverityInfo:    color.CyanString,
}

// printIssues writes one line per issue, colored by severity.
func printIssues(w io.Writer, issues []core.Issue) {
	for _, is := range issues {
		paint, ok := severityPaint[is.Severity]
		if !ok {
			paint = color.HiBlackString
		}

		mark := color.HiBlackString("-")
		if is.Fixed {
			mark = color.GreenString("✓")
		}

		fmt.Fprintf(w, "%s %s %-*s %-*s %s\n",
			mark,
			paint("%-*s", severityWidth, is.Severity),
			typeWidth, is.Type,
			locWidth, location(is),
			is.Description,
		)
	}
}

func location(is core.Issue) string {
	switch {
	case is.Row != nil && is.Column != nil:
		return fmt.Sprintf("row %d col %d", *is.Row, *is.Column)
	case is.Row != nil:
		return fmt.Sprintf("row %d", *is.Row)
	}
	return "-"
}

// report is the --report payload.
type report struct {
	Issues []core.Issue     `json:"issues"`
	Stats  core.ColumnStats `json:"stats"`
	Meta   core.Meta        `json:"meta"`
}

func reportOf(res *core.Result) report {
	return report{Issues: res.Issues, Stats: res.Stats, Meta: res.Meta}
}
