// Package history keeps a ledger of processed requests.
//
// Each call to the engine produces one Run summary: what was asked for, how
// large it was, and how many issues were found or fixed. Cell content is
// never stored. Writes are best-effort; a failing store never fails the
// request that produced the run.
package history

import (
	"context"
	"time"

	"github.com/JonMunkholm/csvescape/internal/core"
	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Run is the persisted summary of one engine invocation.
type Run struct {
	ID            uuid.UUID `json:"id"`
	RequestID     string    `json:"request_id,omitempty"`
	Source        string    `json:"source"`
	Mode          string    `json:"mode"`
	Profile       string    `json:"profile"`
	Status        string    `json:"status"`
	ErrorCode     string    `json:"error_code,omitempty"`
	InputBytes    int       `json:"input_bytes"`
	OutputBytes   int       `json:"output_bytes"`
	Rows          int       `json:"rows"`
	RowsTruncated int       `json:"rows_truncated"`
	IssuesFixed   int       `json:"issues_fixed"`
	IssuesUnfixed int       `json:"issues_unfixed"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewRun starts a run summary with a fresh ID.
func NewRun(source, mode, profile string, inputBytes int) Run {
	return Run{
		ID:         uuid.New(),
		Source:     source,
		Mode:       mode,
		Profile:    profile,
		Status:     StatusOK,
		InputBytes: inputBytes,
		CreatedAt:  time.Now().UTC(),
	}
}

// Complete fills the outcome of a successful invocation.
func (r *Run) Complete(res *core.Result, elapsed time.Duration) {
	r.Status = StatusOK
	r.Profile = res.Meta.Profile
	r.OutputBytes = len(res.CSVText)
	r.Rows = res.Stats.Rows
	r.RowsTruncated = res.Meta.RowsTruncated
	r.IssuesFixed = res.Stats.FixedIssuesCount
	r.IssuesUnfixed = res.Stats.UnfixedIssuesCount
	r.DurationMS = elapsed.Milliseconds()
}

// Fail marks the run as rejected with the given error code.
func (r *Run) Fail(code string, elapsed time.Duration) {
	r.Status = StatusError
	r.ErrorCode = code
	r.DurationMS = elapsed.Milliseconds()
}

// Store persists run summaries.
type Store interface {
	// Record saves one run.
	Record(ctx context.Context, run Run) error

	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)

	// Purge deletes runs created more than olderThan ago and reports how many.
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NopStore discards every run. It is used when no database is configured.
type NopStore struct{}

func (NopStore) Record(context.Context, Run) error { return nil }

func (NopStore) Recent(context.Context, int) ([]Run, error) { return []Run{}, nil }

func (NopStore) Purge(context.Context, time.Duration) (int64, error) { return 0, nil }
