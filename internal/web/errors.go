package web

// errors.go maps every failure the service can produce to one JSON error
// envelope:
//
//	{"error":{"code":"...","message":"...","action":"..."},"meta":{"version":"..."}}
//
// The technical error is logged server-side with the request ID; clients
// only see the mapped message. Known errors are matched by identity first,
// then by message pattern for errors that arrive without a typed cause.
//
// Codes:
//
//	INVALID_JSON          400  body is not a JSON object of the expected shape
//	INVALID_BASE64        400  csv_b64 is not base64-encoded UTF-8 text
//	INVALID_REQUEST       400  batch has no items
//	CONFIGURATION_ERROR   422  unknown mode, profile, response level or override
//	PAYLOAD_TOO_LARGE     413  body exceeds CSV_MAX_BODY_BYTES
//	BATCH_TOO_LARGE       413  batch exceeds CSV_MAX_BATCH_ITEMS
//	RATE_LIMITED          429  per-IP request budget exhausted
//	BUSY                  503  no processing slot within CSV_MAX_WAIT_TIME
//	TIMEOUT               504  request deadline passed
//	REQUEST_CANCELED      408  client went away
//	INTERNAL              500  anything else

import (
	"context"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvescape/internal/core"
	"github.com/JonMunkholm/csvescape/internal/logging"
	"github.com/JonMunkholm/csvescape/internal/payload"
	mw "github.com/JonMunkholm/csvescape/internal/web/middleware"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrInvalidJSON is returned when a request body cannot be decoded.
	ErrInvalidJSON = errors.New("invalid JSON body")

	// ErrEmptyBatch is returned for a batch request with no items.
	ErrEmptyBatch = errors.New("batch has no items")

	// ErrBatchTooLarge is returned when a batch exceeds the configured item limit.
	ErrBatchTooLarge = errors.New("batch has too many items")

	// ErrTooManyRequests is returned when a client exceeds its rate limit.
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// UserMessage is the client-facing form of an error.
type UserMessage struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error UserMessage `json:"error"`
	Meta  ErrorMeta   `json:"meta"`
}

// ErrorMeta identifies the service version that produced an error.
type ErrorMeta struct {
	Version string `json:"version"`
}

type errorMapping struct {
	match func(error) bool
	msg   UserMessage
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func contains(pattern string) func(error) bool {
	return func(err error) bool { return strings.Contains(strings.ToLower(err.Error()), pattern) }
}

func isMaxBytes(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{
		match: isMaxBytes,
		msg: UserMessage{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "PAYLOAD_TOO_LARGE",
			Message: "Request body exceeds the size limit",
			Action:  "Split the file into smaller parts or use the CLI",
		},
	},
	{
		match: is(payload.ErrInvalidBase64),
		msg: UserMessage{
			Status:  http.StatusBadRequest,
			Code:    "INVALID_BASE64",
			Message: "csv_b64 is not valid base64-encoded UTF-8 text",
			Action:  "Encode the file as UTF-8, then as standard base64 with padding",
		},
	},
	{
		match: is(ErrInvalidJSON),
		msg: UserMessage{
			Status:  http.StatusBadRequest,
			Code:    "INVALID_JSON",
			Message: "Request body is not valid JSON",
			Action:  "Send a JSON object with at least csv_b64",
		},
	},
	{
		match: is(ErrEmptyBatch),
		msg: UserMessage{
			Status:  http.StatusBadRequest,
			Code:    "INVALID_REQUEST",
			Message: "Batch request has no items",
			Action:  "Send at least one item in items",
		},
	},
	{
		match: is(ErrBatchTooLarge),
		msg: UserMessage{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "BATCH_TOO_LARGE",
			Message: "Batch request has too many items",
			Action:  "Split the batch into smaller requests",
		},
	},
	{
		match: is(ErrTooManyRequests),
		msg: UserMessage{
			Status:  http.StatusTooManyRequests,
			Code:    "RATE_LIMITED",
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
		},
	},
	{
		match: is(ErrBusy),
		msg: UserMessage{
			Status:  http.StatusServiceUnavailable,
			Code:    "BUSY",
			Message: "The service is busy processing other requests",
			Action:  "Please wait a moment and try again",
		},
	},
	{
		match: is(context.DeadlineExceeded),
		msg: UserMessage{
			Status:  http.StatusGatewayTimeout,
			Code:    "TIMEOUT",
			Message: "Request timed out",
			Action:  "Try a smaller payload or try again later",
		},
	},
	{
		match: is(context.Canceled),
		msg: UserMessage{
			Status:  http.StatusRequestTimeout,
			Code:    "REQUEST_CANCELED",
			Message: "Request was cancelled",
			Action:  "Please try again",
		},
	},

	// Untyped fallbacks
	{
		match: contains("rate limit"),
		msg: UserMessage{
			Status:  http.StatusTooManyRequests,
			Code:    "RATE_LIMITED",
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
		},
	},
	{
		match: contains("request body too large"),
		msg: UserMessage{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "PAYLOAD_TOO_LARGE",
			Message: "Request body exceeds the size limit",
			Action:  "Split the file into smaller parts or use the CLI",
		},
	},
}

var defaultMessage = UserMessage{
	Status:  http.StatusInternalServerError,
	Code:    "INTERNAL",
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
}

// MapError converts err into its client-facing message.
// Configuration errors carry their own reason so the caller can fix the request.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var cfgErr *core.ConfigurationError
	if errors.As(err, &cfgErr) {
		return UserMessage{
			Status:  http.StatusUnprocessableEntity,
			Code:    "CONFIGURATION_ERROR",
			Message: cfgErr.Error(),
			Action:  "Check mode, target_profile, response_level and overrides",
		}
	}

	for _, m := range errorMappings {
		if m.match(err) {
			return m.msg
		}
	}
	return defaultMessage
}

// respondError logs err with request context and writes the error envelope.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := MapError(err)

	// The access log carries the code for every failure; server errors also
	// get their own line so they surface at error level with the cause.
	mw.Annotate(r.Context(), "error_code", msg.Code)
	if msg.Status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request error",
			"path", r.URL.Path,
			"code", msg.Code,
			"error", err.Error(),
		)
	} else {
		mw.Annotate(r.Context(), "error", err.Error())
	}

	writeJSON(w, msg.Status, ErrorEnvelope{Error: msg, Meta: ErrorMeta{Version: core.Version}})
}
