package core

// profile.go resolves a named output profile plus sparse overrides into a
// fully populated ProfileConfig.
//
// Resolution is a pure merge: named defaults, then detection results for
// the fields a profile leaves open, then the caller's overrides. Nothing
// here is package-level mutable state; every call builds a fresh config.

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// EscapeStyle controls how the quote character is escaped inside a quoted cell.
type EscapeStyle string

const (
	EscapeRFC4180   EscapeStyle = "rfc4180"
	EscapeDouble    EscapeStyle = "double"
	EscapeBackslash EscapeStyle = "backslash"
	EscapeNone      EscapeStyle = "none"
)

// QuotePolicy controls which cells get quoted.
type QuotePolicy string

const (
	QuoteMinimal    QuotePolicy = "minimal"
	QuoteAll        QuotePolicy = "all"
	QuoteNonNumeric QuotePolicy = "non_numeric"
)

// InjectionProtection controls how formula-triggering prefixes are neutralized.
type InjectionProtection string

const (
	InjectionNone         InjectionProtection = "none"
	InjectionPrefixQuote  InjectionProtection = "prefix_quote"
	InjectionStripFormula InjectionProtection = "strip_formula"
)

// TrimPolicy controls whitespace trimming of cell values.
type TrimPolicy string

const (
	TrimNone  TrimPolicy = "none"
	TrimLeft  TrimPolicy = "left"
	TrimRight TrimPolicy = "right"
	TrimBoth  TrimPolicy = "both"
)

// Built-in profile names.
const (
	ProfileExcel     = "excel"
	ProfileDBRFC4180 = "db_rfc4180"
	ProfileAISafety  = "ai_safety"
	ProfileCustom    = "custom"
)

// ProfileConfig is the fully resolved escaping configuration.
type ProfileConfig struct {
	Profile                  string              `json:"profile" yaml:"profile"`
	Delimiter                string              `json:"delimiter" yaml:"delimiter"`
	QuoteChar                string              `json:"quote_char" yaml:"quote_char"`
	EscapeStyle              EscapeStyle         `json:"escape_style" yaml:"escape_style"`
	LineEnding               LineEnding          `json:"line_ending" yaml:"line_ending"`
	QuotePolicy              QuotePolicy         `json:"quote_policy" yaml:"quote_policy"`
	ExcelInjectionProtection InjectionProtection `json:"excel_injection_protection" yaml:"excel_injection_protection"`
	TrimWhitespace           TrimPolicy          `json:"trim_whitespace" yaml:"trim_whitespace"`
	NullRepresentation       *string             `json:"null_representation" yaml:"null_representation"`
	AddBOM                   bool                `json:"add_bom" yaml:"add_bom"`
	MaxRows                  int                 `json:"max_rows" yaml:"max_rows"`
	HasHeader                *bool               `json:"has_header" yaml:"has_header"`
}

// DelimiterRune returns the delimiter as a rune.
func (c ProfileConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// QuoteRune returns the quote character as a rune.
func (c ProfileConfig) QuoteRune() rune {
	r, _ := utf8.DecodeRuneInString(c.QuoteChar)
	return r
}

// ProfileNames lists the built-in profiles in a stable order.
func ProfileNames() []string {
	return []string{ProfileExcel, ProfileDBRFC4180, ProfileAISafety, ProfileCustom}
}

// ProfileDefaults returns the unresolved defaults for a named profile.
// Delimiter is empty and custom's line ending is auto; both are filled in
// from detection by ProfileBuilder.Build.
func ProfileDefaults(name string) (ProfileConfig, bool) {
	cfg := ProfileConfig{
		Profile:                  name,
		QuoteChar:                `"`,
		EscapeStyle:              EscapeRFC4180,
		LineEnding:               LineEndingAuto,
		QuotePolicy:              QuoteMinimal,
		ExcelInjectionProtection: InjectionNone,
		TrimWhitespace:           TrimNone,
	}

	switch name {
	case ProfileExcel:
		cfg.QuotePolicy = QuoteMinimal
		cfg.LineEnding = LineEndingCRLF
		cfg.AddBOM = true
		cfg.ExcelInjectionProtection = InjectionPrefixQuote
		cfg.TrimWhitespace = TrimRight
	case ProfileDBRFC4180:
		cfg.QuotePolicy = QuoteAll
		cfg.LineEnding = LineEndingCRLF
		cfg.NullRepresentation = strPtr(`\N`)
	case ProfileAISafety:
		cfg.QuotePolicy = QuoteAll
		cfg.LineEnding = LineEndingLF
		cfg.ExcelInjectionProtection = InjectionStripFormula
		cfg.TrimWhitespace = TrimBoth
	case ProfileCustom:
	default:
		return ProfileConfig{}, false
	}
	return cfg, true
}

// ProfileBuilder merges a named profile, detection results and overrides.
// The first error encountered is kept and returned by Build.
type ProfileBuilder struct {
	cfg           ProfileConfig
	detectedDelim rune
	detectedLE    LineEnding
	err           error
}

// NewProfileBuilder starts a resolution from the named profile's defaults.
func NewProfileBuilder(name string) *ProfileBuilder {
	b := &ProfileBuilder{detectedDelim: DefaultDelimiter, detectedLE: LineEndingLF}
	cfg, ok := ProfileDefaults(name)
	if !ok {
		b.err = configErr("target_profile", name, "unknown profile %q (expected one of %s)",
			name, strings.Join(ProfileNames(), ", "))
		return b
	}
	b.cfg = cfg
	return b
}

// Detected records what the delimiter and line-ending detectors found.
// They are used only for fields neither the profile nor an override sets.
func (b *ProfileBuilder) Detected(delim rune, le LineEnding) *ProfileBuilder {
	b.detectedDelim = delim
	b.detectedLE = le
	return b
}

// Apply merges a sparse override map. Keys are ProfileConfig JSON field names.
func (b *ProfileBuilder) Apply(overrides map[string]any) *ProfileBuilder {
	if b.err != nil {
		return b
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := b.set(k, overrides[k]); err != nil {
			b.err = err
			return b
		}
	}
	return b
}

// Build returns the resolved config, or the first configuration error.
func (b *ProfileBuilder) Build() (ProfileConfig, error) {
	if b.err != nil {
		return ProfileConfig{}, b.err
	}
	cfg := b.cfg
	if cfg.Delimiter == "" {
		cfg.Delimiter = string(b.detectedDelim)
	}
	if cfg.LineEnding == LineEndingAuto {
		cfg.LineEnding = b.detectedLE
	}
	if cfg.QuoteChar == cfg.Delimiter {
		return ProfileConfig{}, configErr("quote_char", cfg.QuoteChar, "must differ from the delimiter %q", cfg.Delimiter)
	}
	return cfg, nil
}

// ResolveProfile is the one-call form of the builder.
func ResolveProfile(name string, overrides map[string]any, delim rune, le LineEnding) (ProfileConfig, error) {
	return NewProfileBuilder(name).Detected(delim, le).Apply(overrides).Build()
}

// OverrideKeys lists every key Apply accepts.
func OverrideKeys() []string {
	return []string{
		"add_bom", "delimiter", "escape_style", "excel_injection_protection", "has_header",
		"line_ending", "max_rows", "null_representation", "quote_char", "quote_policy",
		"trim_whitespace",
	}
}

func (b *ProfileBuilder) set(key string, v any) error {
	switch key {
	case "delimiter":
		s, err := stringValue(key, v)
		if err != nil {
			return err
		}
		d, ok := parseDelimiter(s)
		if !ok {
			return configErr(key, v, `must be one of ",", ";", "\t", "|"`)
		}
		b.cfg.Delimiter = string(d)

	case "quote_char":
		s, err := stringValue(key, v)
		if err != nil {
			return err
		}
		if utf8.RuneCountInString(s) != 1 || s == "\r" || s == "\n" {
			return configErr(key, v, "must be a single character other than CR or LF")
		}
		b.cfg.QuoteChar = s

	case "escape_style":
		s, err := enumValue(key, v, EscapeRFC4180, EscapeDouble, EscapeBackslash, EscapeNone)
		if err != nil {
			return err
		}
		b.cfg.EscapeStyle = s

	case "line_ending":
		s, err := enumValue(key, v, LineEndingCRLF, LineEndingLF, LineEndingAuto)
		if err != nil {
			return err
		}
		b.cfg.LineEnding = s

	case "quote_policy":
		s, err := enumValue(key, v, QuoteMinimal, QuoteAll, QuoteNonNumeric)
		if err != nil {
			return err
		}
		b.cfg.QuotePolicy = s

	case "excel_injection_protection":
		s, err := enumValue(key, v, InjectionNone, InjectionPrefixQuote, InjectionStripFormula)
		if err != nil {
			return err
		}
		b.cfg.ExcelInjectionProtection = s

	case "trim_whitespace":
		s, err := enumValue(key, v, TrimNone, TrimLeft, TrimRight, TrimBoth)
		if err != nil {
			return err
		}
		b.cfg.TrimWhitespace = s

	case "null_representation":
		if v == nil {
			b.cfg.NullRepresentation = nil
			return nil
		}
		s, err := stringValue(key, v)
		if err != nil {
			return err
		}
		b.cfg.NullRepresentation = strPtr(s)

	case "add_bom":
		flag, ok := v.(bool)
		if !ok {
			return configErr(key, v, "must be a boolean")
		}
		b.cfg.AddBOM = flag

	case "max_rows":
		n, ok := intValue(v)
		if !ok || n < 0 {
			return configErr(key, v, "must be a non-negative integer")
		}
		b.cfg.MaxRows = n

	case "has_header":
		switch h := v.(type) {
		case nil:
			b.cfg.HasHeader = nil
		case bool:
			b.cfg.HasHeader = &h
		case string:
			if h != "auto" {
				return configErr(key, v, `must be true, false, null or "auto"`)
			}
			b.cfg.HasHeader = nil
		default:
			return configErr(key, v, `must be true, false, null or "auto"`)
		}

	default:
		return configErr(key, v, "unknown override key")
	}
	return nil
}

func stringValue(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", configErr(key, v, "must be a string")
	}
	return s, nil
}

func enumValue[T ~string](key string, v any, allowed ...T) (T, error) {
	s, ok := v.(string)
	if ok {
		for _, a := range allowed {
			if T(s) == a {
				return a, nil
			}
		}
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return "", configErr(key, v, "must be one of %s", strings.Join(names, ", "))
}

// intValue accepts the integer shapes JSON, YAML and Go callers produce.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		// 2^63 itself is not representable as an int64.
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return intValue(int64(n))
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return intValue(i)
	}
	return 0, false
}

// parseDelimiter accepts a literal delimiter plus the spellings "\t" and "tab".
func parseDelimiter(s string) (rune, bool) {
	switch s {
	case `\t`, "tab", "TAB":
		return '\t', true
	}
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) || !IsDelimiter(r) {
		return 0, false
	}
	return r, true
}
