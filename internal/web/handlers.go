package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/csvescape/internal/core"
	"github.com/JonMunkholm/csvescape/internal/history"
	"github.com/JonMunkholm/csvescape/internal/logging"
	"github.com/JonMunkholm/csvescape/internal/payload"
	mw "github.com/JonMunkholm/csvescape/internal/web/middleware"
	"golang.org/x/sync/errgroup"
)

// handleEscape runs one escape, sanitize or analyze request.
func (s *Server) handleEscape(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, s.cfg.Limits.MaxBodyBytes)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	resp, err := s.process(r, body, sourceHTTP)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBatch runs several requests in parallel under a single limiter slot.
// A failing item does not fail the batch; its error is reported in place.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, s.cfg.Limits.MaxBodyBytes)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var batch BatchRequest
	if err := unmarshalNumbers(body, &batch); err != nil {
		respondError(w, r, ErrInvalidJSON)
		return
	}
	switch {
	case len(batch.Items) == 0:
		respondError(w, r, ErrEmptyBatch)
		return
	case len(batch.Items) > s.cfg.Limits.MaxBatchItems:
		respondError(w, r, ErrBatchTooLarge)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	results := make([]BatchItemResult, len(batch.Items))
	var g errgroup.Group
	g.SetLimit(s.cfg.Limits.BatchParallelism)
	for i, item := range batch.Items {
		g.Go(func() error {
			results[i].Index = i
			resp, err := s.process(r, item, sourceBatch)
			if err != nil {
				msg := MapError(err)
				results[i].Error = &msg
				logging.FromContext(r.Context()).Warn("batch item failed",
					"index", i,
					"code", msg.Code,
					"error", err.Error(),
				)
				return nil
			}
			results[i].Response = resp
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Error != nil {
			failed++
		}
	}
	mw.Annotate(r.Context(), "batch_items", len(results), "batch_failed", failed)

	writeJSON(w, http.StatusOK, BatchResponse{
		Results: results,
		Meta:    ErrorMeta{Version: core.Version},
	})
}

// process decodes one request body, runs the engine and records the run.
func (s *Server) process(r *http.Request, raw []byte, source string) (*EscapeResponse, error) {
	ctx := r.Context()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := decodeEscapeRequest(raw)
	if err != nil {
		return nil, err
	}
	level, err := parseResponseLevel(req.ResponseLevel)
	if err != nil {
		return nil, err
	}

	profile := req.TargetProfile
	if profile == "" {
		profile = s.cfg.Detect.DefaultProfile
	}
	modeName := req.Mode
	if modeName == "" {
		modeName = string(core.ModeEscape)
	}

	run := newRequestRun(r, source, modeName, profile, len(req.CSVB64))
	start := time.Now()
	if source == sourceHTTP {
		mw.Annotate(ctx, "mode", modeName, "profile", profile, "run_id", run.ID.String())
	}

	res, err := s.runEngine(req, modeName, profile)
	if err != nil {
		run.Fail(MapError(err).Code, time.Since(start))
		s.record(r, run)
		return nil, err
	}

	run.Complete(res, time.Since(start))
	s.record(r, run)
	return shapeResponse(res, level, run.ID.String(), run.RequestID), nil
}

func (s *Server) runEngine(req EscapeRequest, modeName, profile string) (*core.Result, error) {
	mode, err := core.ParseMode(modeName)
	if err != nil {
		return nil, err
	}
	text, err := payload.DecodeBase64Text(req.CSVB64)
	if err != nil {
		return nil, err
	}
	return core.Process(core.Request{
		Mode:        mode,
		Text:        text,
		Profile:     profile,
		Overrides:   req.Overrides,
		SampleLines: s.cfg.Detect.SampleLines,
	})
}

// record stores run, logging rather than failing when the store errors.
func (s *Server) record(r *http.Request, run history.Run) {
	if err := s.store.Record(r.Context(), run); err != nil {
		logging.FromContext(r.Context()).Warn("history: record failed",
			"run_id", run.ID.String(),
			"error", err.Error(),
		)
	}
}

// handleProfiles lists the built-in profiles and the accepted override keys.
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	names := core.ProfileNames()
	profiles := make([]ProfileInfo, 0, len(names))
	for _, name := range names {
		cfg, _ := core.ProfileDefaults(name)
		profiles = append(profiles, ProfileInfo{Name: name, Defaults: cfg})
	}
	writeJSON(w, http.StatusOK, ProfilesResponse{
		Profiles:     profiles,
		OverrideKeys: core.OverrideKeys(),
		Default:      s.cfg.Detect.DefaultProfile,
	})
}

// handleRuns returns the most recent run summaries, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", s.cfg.History.RecentLimit)
	if limit > s.cfg.History.RecentLimit {
		limit = s.cfg.History.RecentLimit
	}

	runs, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleHealth reports liveness and current processing load.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": core.Version,
		"limiter": s.limiter.Status(),
	})
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
