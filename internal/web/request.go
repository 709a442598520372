package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvescape/internal/core"
	"gitlab.com/tozd/go/errors"
)

// ResponseLevel selects how much of a result is returned.
type ResponseLevel string

const (
	LevelSimple   ResponseLevel = "simple"
	LevelStandard ResponseLevel = "standard"
	LevelDebug    ResponseLevel = "debug"
)

// parseResponseLevel defaults an empty level to simple.
func parseResponseLevel(s string) (ResponseLevel, error) {
	switch l := ResponseLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LevelSimple, nil
	case LevelSimple, LevelStandard, LevelDebug:
		return l, nil
	}
	return "", errors.WithStack(&core.ConfigurationError{
		Field:  "response_level",
		Value:  s,
		Reason: `must be one of simple, standard, debug`,
	})
}

// EscapeRequest is the JSON body of POST /csv/v0/escape.
//
// Profile override fields may also be sent at the top level, as older
// clients do ("delimiter": ";"). Values in Overrides win over top-level ones.
type EscapeRequest struct {
	Mode          string         `json:"mode"`
	CSVB64        string         `json:"csv_b64"`
	TargetProfile string         `json:"target_profile"`
	Overrides     map[string]any `json:"overrides"`
	ResponseLevel string         `json:"response_level"`
}

// BatchRequest is the JSON body of POST /csv/v0/escape/batch.
type BatchRequest struct {
	Items []json.RawMessage `json:"items"`
}

// readBody reads r's body, mapping an oversized body to *http.MaxBytesError.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, errors.WithStack(err)
		}
		return nil, errors.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return body, nil
}

// decodeEscapeRequest parses one escape request, folding top-level
// override fields into Overrides. Numbers decode as json.Number.
func decodeEscapeRequest(raw []byte) (EscapeRequest, error) {
	var req EscapeRequest
	if err := unmarshalNumbers(raw, &req); err != nil {
		return req, errors.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return req, errors.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	for _, key := range core.OverrideKeys() {
		val, ok := fields[key]
		if !ok {
			continue
		}
		if _, set := req.Overrides[key]; set {
			continue
		}
		var v any
		if err := unmarshalNumbers(val, &v); err != nil {
			return req, errors.Errorf("%w: field %s: %v", ErrInvalidJSON, key, err)
		}
		if req.Overrides == nil {
			req.Overrides = make(map[string]any)
		}
		req.Overrides[key] = v
	}
	return req, nil
}

func unmarshalNumbers(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
