package core

// pipeline.go sequences the stages for each mode.
//
// Every invocation walks a fixed plan:
//
//	escape:   received -> parsed -> serialized -> done
//	sanitize: received -> parsed -> analyzed -> sanitized -> serialized -> done
//	analyze:  received -> parsed -> analyzed -> serialized -> done
//
// Configuration is resolved while still in "received", so a configuration
// error never leaves a partially built Table behind. All state lives in the
// per-call run value.

import (
	"fmt"
	"strings"
)

// State is a pipeline stage.
type State string

const (
	StateReceived   State = "received"
	StateParsed     State = "parsed"
	StateAnalyzed   State = "analyzed"
	StateSanitized  State = "sanitized"
	StateSerialized State = "serialized"
	StateDone       State = "done"
)

var plans = map[Mode][]State{
	ModeEscape:   {StateParsed, StateSerialized, StateDone},
	ModeSanitize: {StateParsed, StateAnalyzed, StateSanitized, StateSerialized, StateDone},
	ModeAnalyze:  {StateParsed, StateAnalyzed, StateSerialized, StateDone},
}

var transitions = map[State][]State{
	StateReceived:   {StateParsed},
	StateParsed:     {StateAnalyzed, StateSerialized},
	StateAnalyzed:   {StateSanitized, StateSerialized},
	StateSanitized:  {StateSerialized},
	StateSerialized: {StateDone},
}

// Process runs one request through the stage plan for its mode.
// The only error it returns is a *ConfigurationError (possibly wrapped).
func Process(req Request) (*Result, error) {
	if !req.Mode.Valid() {
		return nil, configErr("mode", req.Mode, "unknown mode %q (expected escape, sanitize or analyze)", req.Mode)
	}

	b := NewProfileBuilder(req.Profile).Apply(req.Overrides)
	if b.err != nil {
		return nil, b.err
	}
	detected := DetectDelimiterQuoted(req.Text, req.SampleLines, b.cfg.QuoteRune())
	cfg, err := b.Detected(detected, DetectLineEnding(req.Text)).Build()
	if err != nil {
		return nil, err
	}

	r := &run{req: req, cfg: cfg, detected: detected, stages: []State{StateReceived}}
	for _, next := range plans[req.Mode] {
		r.enter(next)
	}
	return r.result(), nil
}

type run struct {
	req      Request
	cfg      ProfileConfig
	detected rune
	stages   []State

	table     Table
	truncated int
	before    ColumnStats
	stats     ColumnStats
	issues    []Issue
	sanitized bool
	output    string
}

// enter performs the work of state next and records the transition.
// An illegal transition is a programming error in the plans table.
func (r *run) enter(next State) {
	cur := r.stages[len(r.stages)-1]
	if !allowed(cur, next) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", cur, next))
	}

	switch next {
	case StateParsed:
		r.table = Parse(r.req.Text, r.cfg.DelimiterRune(), r.cfg.QuoteRune())
		r.truncated = r.table.Truncate(r.cfg.MaxRows)
		r.before, r.issues = AnalyzeStructure(r.table, r.detected, r.cfg.HasHeader)
		r.stats = r.before

	case StateAnalyzed:
		// Stats and mismatch diagnostics were computed with the parse; this
		// stage marks them as the report for analyze and sanitize.

	case StateSanitized:
		width := r.before.ColumnsMode
		if width == 0 {
			width = r.before.ColumnsMax
		}
		repaired, fixes := Sanitize(r.table, width, r.cfg.DelimiterRune())
		r.table = repaired
		r.issues = append(r.issues, fixes...)
		r.stats, _ = AnalyzeStructure(repaired, r.detected, r.cfg.HasHeader)
		r.stats.countIssues(r.issues)
		r.sanitized = true

	case StateSerialized:
		if r.req.Mode == ModeAnalyze {
			r.output = RenderPassThrough(r.req.Text, r.cfg.LineEnding)
		} else {
			r.output = Render(r.table, r.cfg)
		}
	}

	r.stages = append(r.stages, next)
}

func (r *run) result() *Result {
	issues := r.issues
	if issues == nil {
		issues = []Issue{}
	}
	return &Result{
		CSVText: r.output,
		Issues:  issues,
		Stats:   r.stats,
		Meta: Meta{
			Version:              Version,
			Profile:              r.cfg.Profile,
			ModeUsed:             r.req.Mode,
			EffectiveConfig:      r.cfg,
			StructureStatsBefore: r.before,
			Sanitized:            r.sanitized,
			RowsTruncated:        r.truncated,
			Stages:               r.stages,
		},
	}
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseMode converts a user-supplied mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", configErr("mode", s, "unknown mode %q (expected escape, sanitize or analyze)", s)
	}
	return m, nil
}
