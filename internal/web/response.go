package web

import (
	"github.com/JonMunkholm/csvescape/internal/core"
)

// EscapeResponse is the success body of POST /csv/v0/escape.
// Which fields are present depends on the response level.
type EscapeResponse struct {
	Result ResultBody `json:"result"`
	Meta   MetaBody   `json:"meta"`
}

// ResultBody carries the output text and, from standard up, diagnostics.
type ResultBody struct {
	CSVText string            `json:"csv_text"`
	Issues  *[]core.Issue     `json:"issues,omitempty"`
	Stats   *core.ColumnStats `json:"stats,omitempty"`
}

// MetaBody describes how the result was produced.
type MetaBody struct {
	Version              string              `json:"version"`
	Profile              string              `json:"profile"`
	ModeUsed             core.Mode           `json:"mode_used"`
	ResponseLevelUsed    ResponseLevel       `json:"response_level_used"`
	EffectiveConfig      *core.ProfileConfig `json:"effective_config,omitempty"`
	Sanitized            *bool               `json:"sanitized,omitempty"`
	StructureStatsBefore *core.ColumnStats   `json:"structure_stats_before,omitempty"`
	RowsTruncated        *int                `json:"rows_truncated,omitempty"`
	Stages               []core.State        `json:"stages,omitempty"`
	RunID                string              `json:"run_id,omitempty"`
	RequestID            string              `json:"request_id,omitempty"`
}

// shapeResponse trims res to what level asks for.
func shapeResponse(res *core.Result, level ResponseLevel, runID, requestID string) *EscapeResponse {
	out := &EscapeResponse{
		Result: ResultBody{CSVText: res.CSVText},
		Meta: MetaBody{
			Version:           res.Meta.Version,
			Profile:           res.Meta.Profile,
			ModeUsed:          res.Meta.ModeUsed,
			ResponseLevelUsed: level,
		},
	}
	if level == LevelSimple {
		return out
	}

	issues := res.Issues
	stats := res.Stats
	cfg := res.Meta.EffectiveConfig
	sanitized := res.Meta.Sanitized
	out.Result.Issues = &issues
	out.Result.Stats = &stats
	out.Meta.EffectiveConfig = &cfg
	out.Meta.Sanitized = &sanitized
	if level == LevelStandard {
		return out
	}

	before := res.Meta.StructureStatsBefore
	truncated := res.Meta.RowsTruncated
	out.Meta.StructureStatsBefore = &before
	out.Meta.RowsTruncated = &truncated
	out.Meta.Stages = res.Meta.Stages
	out.Meta.RunID = runID
	out.Meta.RequestID = requestID
	return out
}

// BatchItemResult is one entry of a batch response, in request order.
type BatchItemResult struct {
	Index    int             `json:"index"`
	Response *EscapeResponse `json:"response,omitempty"`
	Error    *UserMessage    `json:"error,omitempty"`
}

// BatchResponse is the success body of POST /csv/v0/escape/batch.
type BatchResponse struct {
	Results []BatchItemResult `json:"results"`
	Meta    ErrorMeta         `json:"meta"`
}

// ProfileInfo describes one built-in profile.
type ProfileInfo struct {
	Name     string             `json:"name"`
	Defaults core.ProfileConfig `json:"defaults"`
}

// ProfilesResponse is the body of GET /csv/v0/profiles.
type ProfilesResponse struct {
	Profiles     []ProfileInfo `json:"profiles"`
	OverrideKeys []string      `json:"override_keys"`
	Default      string        `json:"default_profile"`
}
