package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_PadAndMerge(t *testing.T) {
	tb := table(
		[]string{"a", "b", "c"},
		[]string{"d", "e", "f"},
		[]string{"g", "h"},
		[]string{"i", "j", "k", "l"},
		[]string{"m", "n"},
	)

	got, issues := Sanitize(tb, 3, ',')

	assert.Equal(t, [][]string{
		{"a", "b", "c"},
		{"d", "e", "f"},
		{"g", "h", ""},
		{"i", "j", "k,l"},
		{"m", "n", ""},
	}, got.Strings())

	require.Len(t, issues, 3)
	wants := []struct {
		typ IssueType
		row int
		col int
	}{
		{IssueRowPadded, 3, 3},
		{IssueRowTruncated, 4, 3},
		{IssueRowPadded, 5, 3},
	}
	for i, w := range wants {
		assert.Equal(t, w.typ, issues[i].Type)
		assert.Equal(t, w.row, *issues[i].Row)
		assert.Equal(t, w.col, *issues[i].Column)
		assert.Equal(t, SeverityWarning, issues[i].Severity)
		assert.True(t, issues[i].Fixed)
	}

	// The input table is not modified.
	assert.Equal(t, 2, tb.Rows[2].Len())
}

func TestSanitize_EmptyRowsRemoved(t *testing.T) {
	tb := table([]string{"a", "b"}, []string{""}, []string{"c", "d"})
	tb.Rows = append(tb.Rows, Row{Num: 4})

	got, issues := Sanitize(tb, 2, ',')

	require.Equal(t, 2, got.Len())
	assert.Equal(t, 1, got.Rows[0].Num)
	assert.Equal(t, 3, got.Rows[1].Num, "row numbers keep their original position")

	require.Len(t, issues, 2)
	for i, wantRow := range []int{2, 4} {
		assert.Equal(t, IssueEmptyRowRemoved, issues[i].Type)
		assert.Equal(t, SeverityInfo, issues[i].Severity)
		assert.Equal(t, wantRow, *issues[i].Row)
		assert.Nil(t, issues[i].Column)
		assert.True(t, issues[i].Fixed)
	}
}

func TestSanitize_MergeUsesDelimiter(t *testing.T) {
	tb := table([]string{"a", "b", "c", "d"})

	got, _ := Sanitize(tb, 2, ';')
	assert.Equal(t, [][]string{{"a", "b;c;d"}}, got.Strings())

	got, _ = Sanitize(tb, 1, '|')
	assert.Equal(t, [][]string{{"a|b|c|d"}}, got.Strings())
}

func TestSanitize_UniformWidthAfterRepair(t *testing.T) {
	tb := table(
		[]string{"1"},
		[]string{"1", "2", "3", "4", "5"},
		[]string{"1", "2"},
		[]string{"1", "2", "3"},
	)
	for width := 1; width <= 5; width++ {
		got, issues := Sanitize(tb, width, ',')
		for _, row := range got.Rows {
			assert.Equal(t, width, row.Len(), "width %d row %d", width, row.Num)
		}
		for _, is := range issues {
			assert.True(t, is.Fixed)
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	tb := table([]string{"a", "b"}, []string{"c"}, []string{"d", "e", "f"})

	once, _ := Sanitize(tb, 2, ',')
	twice, issues := Sanitize(once, 2, ',')

	assert.Equal(t, once.Strings(), twice.Strings())
	assert.Empty(t, issues)
}
