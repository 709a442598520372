package core

// parser.go turns delimiter-separated text into a Table.
//
// The parser is lenient by construction: it never fails. Malformed input is
// kept as data so the analyzer and sanitizer can report and repair it.
//
//   - Quoted cells may contain the delimiter, the quote (doubled) and newlines.
//   - An unterminated quote is closed at end of text.
//   - "\r\n", "\r" and "\n" each end one row.
//   - A trailing line ending does not produce an extra empty row.

import "strings"

const bom = '\uFEFF'

// Parse splits text into rows and cells using delim and quote.
// A leading byte-order mark is ignored.
func Parse(text string, delim, quote rune) Table {
	text = strings.TrimPrefix(text, string(bom))
	rs := []rune(text)

	var (
		t        Table
		cells    []Cell
		field    strings.Builder
		quoted   bool // current field opened with a quote
		inQuotes bool
		pending  bool // something consumed since the last row boundary
	)

	endField := func() {
		v := field.String()
		cells = append(cells, Cell{Value: v, Null: !quoted && v == ""})
		field.Reset()
		quoted = false
	}
	endRow := func() {
		endField()
		t.Rows = append(t.Rows, Row{Num: len(t.Rows) + 1, Cells: cells})
		cells = nil
		pending = false
	}

	for i := 0; i < len(rs); i++ {
		r := rs[i]

		if inQuotes {
			pending = true
			if r == quote {
				if i+1 < len(rs) && rs[i+1] == quote {
					field.WriteRune(quote)
					i++
					continue
				}
				inQuotes = false
				continue
			}
			field.WriteRune(r)
			continue
		}

		switch {
		case r == '\r' || r == '\n':
			if r == '\r' && i+1 < len(rs) && rs[i+1] == '\n' {
				i++
			}
			endRow()
		case r == delim:
			pending = true
			endField()
		case r == quote && !quoted && field.Len() == 0:
			pending = true
			quoted, inQuotes = true, true
		default:
			pending = true
			field.WriteRune(r)
		}
	}

	if pending {
		endRow()
	}
	return t
}

// splitLines splits text on any of "\r\n", "\r" or "\n" without regard to quoting.
// A trailing line ending does not yield a final empty element.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
