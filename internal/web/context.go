package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/csvescape/internal/history"
	"github.com/go-chi/chi/v5/middleware"
)

// Run sources recorded in history.
const (
	sourceHTTP  = "http"
	sourceBatch = "http-batch"
)

// newRequestRun starts a history run tagged with the chi request ID.
func newRequestRun(r *http.Request, source, mode, profile string, inputBytes int) history.Run {
	run := history.NewRun(source, mode, profile, inputBytes)
	run.RequestID = requestID(r.Context())
	return run
}

func requestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}
