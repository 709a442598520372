package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/csvescape/internal/config"
	"github.com/JonMunkholm/csvescape/internal/core"
	"github.com/JonMunkholm/csvescape/internal/history"
	"github.com/JonMunkholm/csvescape/internal/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           0,
			RequestTimeout: 5 * time.Second,
		},
		Limits: config.LimitsConfig{
			MaxBodyBytes:     1 << 20,
			MaxBatchItems:    5,
			BatchParallelism: 2,
			MaxConcurrent:    4,
			MaxWaitTime:      time.Second,
		},
		History: config.HistoryConfig{RecentLimit: 10},
		Detect:  config.DetectConfig{SampleLines: 20, DefaultProfile: core.ProfileExcel},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *history.MemoryStore) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store := history.NewMemoryStore(0)
	s := NewServer(cfg, store)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, store
}

func do(t *testing.T, s *Server, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:4242"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(t, core.Version, env.Meta.Version)
	return env.Error.Code
}

func b64(s string) string {
	return payload.EncodeBase64Text(s)
}

func TestEscape_SimpleDefaults(t *testing.T) {
	s, store := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/csv/v0/escape", map[string]any{"csv_b64": b64("a,b\n1,2\n")}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp EscapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "\uFEFFa,b\r\n1,2\r\n", resp.Result.CSVText)
	assert.Equal(t, core.ProfileExcel, resp.Meta.Profile)
	assert.Equal(t, core.ModeEscape, resp.Meta.ModeUsed)
	assert.Equal(t, LevelSimple, resp.Meta.ResponseLevelUsed)
	assert.Equal(t, core.Version, resp.Meta.Version)

	raw := decode(t, rec)
	result := raw["result"].(map[string]any)
	assert.NotContains(t, result, "issues")
	assert.NotContains(t, result, "stats")
	assert.NotContains(t, raw["meta"].(map[string]any), "effective_config")

	runs, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusOK, runs[0].Status)
	assert.Equal(t, sourceHTTP, runs[0].Source)
	assert.Equal(t, 2, runs[0].Rows)
}

// accessLog captures the default logger and returns a func yielding the
// access-log line written for the last request.
func accessLog(t *testing.T) func() map[string]any {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	return func() map[string]any {
		var last map[string]any
		for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
			var entry map[string]any
			require.NoError(t, json.Unmarshal(line, &entry))
			if entry["msg"] == "request" {
				last = entry
			}
		}
		require.NotNil(t, last, buf.String())
		return last
	}
}

func TestEscape_AccessLogCarriesRun(t *testing.T) {
	lastLine := accessLog(t)
	s, store := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/csv/v0/escape", map[string]any{"csv_b64": b64("a,b\n"), "mode": "analyze"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	runs, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	line := lastLine()
	assert.Equal(t, "/csv/v0/escape", line["route"])
	assert.Equal(t, "analyze", line["mode"])
	assert.Equal(t, core.ProfileExcel, line["profile"])
	assert.Equal(t, runs[0].ID.String(), line["run_id"])
	assert.Equal(t, "192.0.2.10:4242", line["ip"])

	rec = do(t, s, http.MethodPost, "/csv/v0/escape", map[string]any{"csv_b64": b64("a\n"), "target_profile": "lotus"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	line = lastLine()
	assert.Equal(t, "CONFIGURATION_ERROR", line["error_code"])
	assert.Equal(t, "WARN", line["level"])
}

func TestEscape_StandardLevel(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/csv/v0/escape", map[string]any{
		"mode":           "sanitize",
		"csv_b64":        b64("a,b\n1\n"),
		"target_profile": "custom",
		"response_level": "standard",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp EscapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a,b\n1,\n", resp.Result.CSVText)
	require.NotNil(t, resp.Result.Issues)
	assert.Len(t, *resp.Result.Issues, 2)
	require.NotNil(t, resp.Result.Stats)
	assert.Equal(t, 1, resp.Result.Stats.FixedIssuesCount)
	require.NotNil(t, resp.Meta.Sanitized)
	assert.True(t, *resp.Meta.Sanitized)
	require.NotNil(t, resp.Meta.EffectiveConfig)
	assert.Equal(t, ",", resp.Meta.EffectiveConfig.Delimiter)

	meta := decode(t, rec)["meta"].(map[string]any)
	assert.NotContains(t, meta, "stages")
	assert.NotContains(t, meta, "run_id")
}

func TestEscape_DebugLevel(t *testing.T) {
	s, store := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/csv/v0/escape", map[string]any{
		"mode":           "analyze",
		"csv_b64":        b64("a,b\r\n1,2\r\n"),
		"response_level": "debug",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp EscapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a,b\r\n1,2\r\n", resp.Result.CSVText)
	assert.Equal(t, []core.State{
		core.StateReceived, core.StateParsed, core.StateAnalyzed, core.StateSerialized, core.StateDone,
	}, resp.Meta.Stages)
	require.NotNil(t, resp.Meta.StructureStatsBefore)
	require.NotNil(t, resp.Meta.RowsTruncated)
	assert.Equal(t, 0, *resp.Meta.RowsTruncated)
	assert.NotEmpty(t, resp.Meta.RequestID)

	runs, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runs[0].ID.String(), resp.Meta.RunID)
	assert.Equal(t, resp.Meta.RequestID, runs[0].RequestID)
}

func TestEscape_LegacyOverrideFields(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{
			name: "top_level_field",
			body: map[string]any{"delimiter": ";"},
			want: ";",
		},
		{
			name: "overrides_win",
			body: map[string]any{"delimiter": ";", "overrides": map[string]any{"delimiter": "|"}},
			want: "|",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.body["csv_b64"] = b64("a,b\n")
			tt.body["target_profile"] = "custom"
			tt.body["response_level"] = "standard"

			rec := do(t, s, http.MethodPost, "/csv/v0/escape", tt.body, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp EscapeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Meta.EffectiveConfig)
			assert.Equal(t, tt.want, resp.Meta.EffectiveConfig.Delimiter)
		})
	}
}

func TestEscape_MaxRowsAsJSONNumber(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/csv/v0/escape",
		`{"csv_b64":"`+b64("a\nb\nc\n")+`","target_profile":"custom","overrides":{"max_rows":2}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp EscapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a\nb\n", resp.Result.CSVText)
}

func TestEscape_Errors(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid_base64",
			body:       map[string]any{"csv_b64": "not base64!"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_BASE64",
		},
		{
			name:       "invalid_json",
			body:       `{"csv_b64":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_JSON",
		},
		{
			name:       "unknown_profile",
			body:       map[string]any{"csv_b64": b64("a\n"), "target_profile": "nope"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "CONFIGURATION_ERROR",
		},
		{
			name:       "unknown_mode",
			body:       map[string]any{"csv_b64": b64("a\n"), "mode": "explode"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "CONFIGURATION_ERROR",
		},
		{
			name:       "unknown_response_level",
			body:       map[string]any{"csv_b64": b64("a\n"), "response_level": "verbose"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "CONFIGURATION_ERROR",
		},
		{
			name:       "bad_override",
			body:       map[string]any{"csv_b64": b64("a\n"), "overrides": map[string]any{"quote_policy": "sometimes"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "CONFIGURATION_ERROR",
		},
		{
			name:       "payload_too_large",
			mutate:     func(c *config.Config) { c.Limits.MaxBodyBytes = 16 },
			body:       map[string]any{"csv_b64": b64("a,b,c,d,e,f,g\n")},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "PAYLOAD_TOO_LARGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.mutate)
			rec := do(t, s, http.MethodPost, "/csv/v0/escape", tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestEscape_ConfigurationErrorMessage(t *testing.T) {
	s, store := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/csv/v0/escape",
		map[string]any{"csv_b64": b64("a\n"), "overrides": map[string]any{"delimiter": "#"}}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Contains(t, env.Error.Message, "configuration error: delimiter")

	runs, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusError, runs[0].Status)
	assert.Equal(t, "CONFIGURATION_ERROR", runs[0].ErrorCode)
}

func TestEscape_Busy(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Limits.MaxConcurrent = 1
		c.Limits.MaxWaitTime = 10 * time.Millisecond
	})
	require.True(t, s.limiter.TryAcquire())
	defer s.limiter.Release()

	rec := do(t, s, http.MethodPost, "/csv/v0/escape", map[string]any{"csv_b64": b64("a\n")}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "BUSY", errorCode(t, rec))
}

type failingStore struct{ history.NopStore }

func (failingStore) Record(context.Context, history.Run) error {
	return errors.New("store unavailable")
}

func TestEscape_HistoryFailureIsNotFatal(t *testing.T) {
	s := NewServer(testConfig(), failingStore{})
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	rec := do(t, s, http.MethodPost, "/csv/v0/escape", map[string]any{"csv_b64": b64("a\n")}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestBatch_PreservesOrder(t *testing.T) {
	s, store := newTestServer(t, nil)

	items := []map[string]any{
		{"csv_b64": b64("a,b\n"), "target_profile": "custom"},
		{"csv_b64": "%%%"},
		{"csv_b64": b64("x;y\n"), "target_profile": "custom", "mode": "analyze"},
	}
	rec := do(t, s, http.MethodPost, "/csv/v0/escape/batch", map[string]any{"items": items}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	for i, r := range resp.Results {
		assert.Equal(t, i, r.Index)
	}

	require.NotNil(t, resp.Results[0].Response)
	assert.Equal(t, "a,b\n", resp.Results[0].Response.Result.CSVText)
	assert.Nil(t, resp.Results[0].Error)

	require.NotNil(t, resp.Results[1].Error)
	assert.Equal(t, "INVALID_BASE64", resp.Results[1].Error.Code)
	assert.Nil(t, resp.Results[1].Response)

	require.NotNil(t, resp.Results[2].Response)
	assert.Equal(t, core.ModeAnalyze, resp.Results[2].Response.Meta.ModeUsed)

	assert.Equal(t, 2, store.Len()-countErrors(t, store))
}

func countErrors(t *testing.T, store *history.MemoryStore) int {
	t.Helper()
	runs, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	n := 0
	for _, r := range runs {
		if r.Status == history.StatusError {
			n++
		}
	}
	return n
}

func TestBatch_Errors(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/csv/v0/escape/batch", map[string]any{"items": []any{}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))

	items := make([]map[string]any, 6)
	for i := range items {
		items[i] = map[string]any{"csv_b64": b64("a\n")}
	}
	rec = do(t, s, http.MethodPost, "/csv/v0/escape/batch", map[string]any{"items": items}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "BATCH_TOO_LARGE", errorCode(t, rec))

	rec = do(t, s, http.MethodPost, "/csv/v0/escape/batch", "[1,2]", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", errorCode(t, rec))
}

func TestProfiles(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/csv/v0/profiles", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProfilesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Profiles, len(core.ProfileNames()))
	assert.Equal(t, core.ProfileExcel, resp.Profiles[0].Name)
	assert.True(t, resp.Profiles[0].Defaults.AddBOM)
	assert.Equal(t, core.OverrideKeys(), resp.OverrideKeys)
	assert.Equal(t, core.ProfileExcel, resp.Default)
}

func TestRuns(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.History.RecentLimit = 2 })

	for i := 0; i < 3; i++ {
		rec := do(t, s, http.MethodPost, "/csv/v0/escape", map[string]any{"csv_b64": b64("a\n")}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?limit=1", 1},
		{"?limit=100", 2},
		{"?limit=abc", 2},
	}
	for _, tt := range tests {
		t.Run("limit"+tt.query, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/csv/v0/runs"+tt.query, nil, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp struct {
				Runs []history.Run `json:"runs"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Len(t, resp.Runs, tt.want)
		})
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, core.Version, body["version"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestAPIKeyAuth(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"k1", "k2"}
	})

	rec := do(t, s, http.MethodGet, "/csv/v0/profiles", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_MISSING_KEY", errorCode(t, rec))

	rec = do(t, s, http.MethodGet, "/csv/v0/profiles", nil, http.Header{"X-Api-Key": {"nope"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTH_INVALID_KEY", errorCode(t, rec))

	rec = do(t, s, http.MethodGet, "/csv/v0/profiles", nil, http.Header{"X-Api-Key": {"k2"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not behind auth")
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Rate.Enabled = true
		c.Rate.RequestsPerMinute = 2
	})

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodGet, "/healthz", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"config", errors.WithStack(&core.ConfigurationError{Field: "mode", Reason: "bad"}), 422, "CONFIGURATION_ERROR"},
		{"base64", errors.Errorf("%w: boom", payload.ErrInvalidBase64), 400, "INVALID_BASE64"},
		{"json", errors.WithStack(ErrInvalidJSON), 400, "INVALID_JSON"},
		{"max_bytes", errors.WithStack(&http.MaxBytesError{Limit: 1}), 413, "PAYLOAD_TOO_LARGE"},
		{"empty_batch", ErrEmptyBatch, 400, "INVALID_REQUEST"},
		{"batch_too_large", ErrBatchTooLarge, 413, "BATCH_TOO_LARGE"},
		{"rate", ErrTooManyRequests, 429, "RATE_LIMITED"},
		{"busy", errors.WithStack(ErrBusy), 503, "BUSY"},
		{"deadline", errors.Errorf("processing: %w", context.DeadlineExceeded), 504, "TIMEOUT"},
		{"canceled", context.Canceled, 408, "REQUEST_CANCELED"},
		{"rate_text", errors.New("upstream rate limit hit"), 429, "RATE_LIMITED"},
		{"unknown", errors.New("something broke"), 500, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := MapError(tt.err)
			assert.Equal(t, tt.wantStatus, msg.Status)
			assert.Equal(t, tt.wantCode, msg.Code)
			assert.NotEmpty(t, msg.Message)
		})
	}

	assert.Equal(t, UserMessage{}, MapError(nil))
}

func TestDecodeEscapeRequest(t *testing.T) {
	req, err := decodeEscapeRequest([]byte(`{"csv_b64":"YQ==","max_rows":3,"has_header":true,"unrelated":1}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("3"), req.Overrides["max_rows"])
	assert.Equal(t, true, req.Overrides["has_header"])
	assert.NotContains(t, req.Overrides, "unrelated")

	_, err = decodeEscapeRequest([]byte(`{"csv_b64":"YQ=="} {}`))
	assert.True(t, errors.Is(err, ErrInvalidJSON))

	_, err = decodeEscapeRequest([]byte(`"just a string"`))
	assert.True(t, errors.Is(err, ErrInvalidJSON))
}

func TestParseResponseLevel(t *testing.T) {
	for in, want := range map[string]ResponseLevel{
		"":         LevelSimple,
		"simple":   LevelSimple,
		"Standard": LevelStandard,
		" debug ":  LevelDebug,
	} {
		got, err := parseResponseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := parseResponseLevel("loud")
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
	assert.True(t, strings.Contains(err.Error(), "response_level"))
}
