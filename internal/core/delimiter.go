package core

import "strings"

// DefaultSampleLines is how many non-blank lines DetectDelimiter inspects
// when the caller does not say otherwise.
const DefaultSampleLines = 20

// DefaultDelimiter is used when detection has nothing to go on.
const DefaultDelimiter = ','

// Delimiters lists the supported field delimiters in tie-break preference order.
var Delimiters = []rune{',', ';', '\t', '|'}

// IsDelimiter reports whether r is one of the supported delimiters.
func IsDelimiter(r rune) bool {
	for _, d := range Delimiters {
		if d == r {
			return true
		}
	}
	return false
}

// DetectDelimiter picks the candidate that splits the sampled lines into the
// most consistent column count other than one.
//
// Each candidate is scored by how many sampled lines share its most common
// non-1 field count. The best score wins; ties go to the earlier entry in
// Delimiters. Fewer than two sampled lines, or no candidate splitting any
// line, yields DefaultDelimiter.
func DetectDelimiter(text string, sampleLines int) rune {
	return DetectDelimiterQuoted(text, sampleLines, '"')
}

// DetectDelimiterQuoted is DetectDelimiter for input quoted with quote.
// Candidates inside quoted fields do not count as separators.
func DetectDelimiterQuoted(text string, sampleLines int, quote rune) rune {
	if sampleLines <= 0 {
		sampleLines = DefaultSampleLines
	}

	var sample []string
	for _, line := range splitLines(strings.TrimPrefix(text, string(bom))) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sample = append(sample, line)
		if len(sample) == sampleLines {
			break
		}
	}
	if len(sample) < 2 {
		return DefaultDelimiter
	}

	best, bestScore := DefaultDelimiter, 0
	for _, d := range Delimiters {
		counts := make([]int, len(sample))
		for i, line := range sample {
			counts[i] = countFields(line, d, quote)
		}
		if score := consistency(counts); score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

// consistency returns how many entries share the modal count, ignoring ones.
// Ties between modal counts go to the larger count.
func consistency(counts []int) int {
	freq := make(map[int]int)
	for _, c := range counts {
		if c != 1 {
			freq[c]++
		}
	}
	mode, n := modal(freq)
	if mode == 0 {
		return 0
	}
	return n
}

// countFields counts fields on a single physical line, ignoring delimiters
// between quotes.
func countFields(line string, delim, quote rune) int {
	n := 1
	inQuotes := false
	for _, r := range line {
		switch {
		case r == quote:
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			n++
		}
	}
	return n
}

// LineEnding values accepted in a ProfileConfig.
type LineEnding string

const (
	LineEndingCRLF LineEnding = "crlf"
	LineEndingLF   LineEnding = "lf"
	LineEndingAuto LineEnding = "auto"
)

// Terminator returns the byte sequence for the line ending.
func (le LineEnding) Terminator() string {
	if le == LineEndingCRLF {
		return "\r\n"
	}
	return "\n"
}

// DetectLineEnding reports crlf if the text contains any carriage return and
// lf otherwise, including for text with no line breaks at all.
func DetectLineEnding(text string) LineEnding {
	if strings.ContainsRune(text, '\r') {
		return LineEndingCRLF
	}
	return LineEndingLF
}
