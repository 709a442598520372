package core

// escaper.go renders a Table back to delimiter-separated text under a
// resolved ProfileConfig.
//
// Each cell passes through, in order: whitespace trimming, null
// substitution, formula-injection protection, then quoting. Every row is
// terminated by exactly one line ending, the last row included.

import (
	"strconv"
	"strings"
	"unicode"
)

// isDangerous reports whether r can make a spreadsheet treat a cell as a formula.
func isDangerous(r rune) bool {
	switch r {
	case '=', '+', '-', '@', '\t', '\r':
		return true
	}
	return false
}

// Render serializes t under cfg. MaxRows, when positive, limits how many
// rows are written.
func Render(t Table, cfg ProfileConfig) string {
	rows := t.Rows
	if cfg.MaxRows > 0 && len(rows) > cfg.MaxRows {
		rows = rows[:cfg.MaxRows]
	}

	e := newEscaper(cfg)
	term := cfg.LineEnding.Terminator()

	var b strings.Builder
	if cfg.AddBOM {
		b.WriteRune(bom)
	}
	for _, row := range rows {
		for i, c := range row.Cells {
			if i > 0 {
				b.WriteRune(e.delim)
			}
			b.WriteString(e.cell(c))
		}
		b.WriteString(term)
	}
	return b.String()
}

// RenderPassThrough rewrites every line ending in text to le and changes
// nothing else.
func RenderPassThrough(text string, le LineEnding) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if le == LineEndingCRLF {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	return text
}

type escaper struct {
	cfg   ProfileConfig
	delim rune
	quote rune
}

func newEscaper(cfg ProfileConfig) escaper {
	return escaper{cfg: cfg, delim: cfg.DelimiterRune(), quote: cfg.QuoteRune()}
}

// cell returns the rendered form of a single cell.
func (e escaper) cell(c Cell) string {
	v := e.trim(c.Value)

	if c.Null {
		v = ""
		if e.cfg.NullRepresentation != nil {
			v = *e.cfg.NullRepresentation
		}
	}

	// An empty value stays distinguishable from a null one only when quoted.
	forceQuote := !c.Null && v == "" && e.cfg.NullRepresentation != nil

	switch e.cfg.ExcelInjectionProtection {
	case InjectionPrefixQuote:
		switch {
		case prefixed(v):
			forceQuote = true
		case startsDangerous(v):
			v = "'" + v
			forceQuote = true
		}
	case InjectionStripFormula:
		v = strings.TrimLeftFunc(v, isDangerous)
	}

	if !forceQuote && !e.needsQuote(v) {
		return v
	}
	return e.quoted(v)
}

func startsDangerous(v string) bool {
	r, ok := firstNonSpace(v)
	return ok && isDangerous(r)
}

// prefixed reports whether v already carries the protective apostrophe in
// front of a formula trigger, as written by an earlier prefix_quote pass.
func prefixed(v string) bool {
	rest, ok := strings.CutPrefix(v, "'")
	return ok && startsDangerous(rest)
}

func (e escaper) trim(v string) string {
	switch e.cfg.TrimWhitespace {
	case TrimLeft:
		return strings.TrimLeftFunc(v, unicode.IsSpace)
	case TrimRight:
		return strings.TrimRightFunc(v, unicode.IsSpace)
	case TrimBoth:
		return strings.TrimFunc(v, unicode.IsSpace)
	}
	return v
}

func (e escaper) needsQuote(v string) bool {
	switch e.cfg.QuotePolicy {
	case QuoteAll:
		return true
	case QuoteNonNumeric:
		if !isNumeric(v) {
			return true
		}
	}
	if strings.ContainsRune(v, e.delim) || strings.ContainsRune(v, e.quote) || strings.ContainsAny(v, "\r\n") {
		return true
	}
	return e.cfg.EscapeStyle == EscapeBackslash && strings.ContainsRune(v, '\\')
}

func (e escaper) quoted(v string) string {
	q := string(e.quote)
	if e.cfg.EscapeStyle == EscapeBackslash {
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, q, `\`+q)
	} else {
		v = strings.ReplaceAll(v, q, q+q)
	}
	return q + v + q
}

func firstNonSpace(v string) (rune, bool) {
	for _, r := range v {
		if r != ' ' {
			return r, true
		}
	}
	return 0, false
}

func isNumeric(v string) bool {
	if v == "" {
		return false
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}
