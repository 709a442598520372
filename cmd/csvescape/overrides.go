package main

import (
	"maps"
	"os"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// loadOverrides merges the overrides file, then each --set pair in order.
// It returns nil when neither supplies anything.
func loadOverrides(path string, sets []string) (map[string]any, error) {
	out := make(map[string]any)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Errorf("reading overrides file: %w", err)
		}
		var fromFile map[string]any
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, errors.Errorf("parsing overrides file %s: %w", path, err)
		}
		maps.Copy(out, fromFile)
	}

	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("invalid --set %q: expected key=value", kv)
		}
		out[key] = scalarValue(raw)
	}

	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// scalarValue types a --set value the way YAML would, except that plain
// strings are kept verbatim. Delimiters such as "|" and "," are YAML
// indicators and must not be reinterpreted.
func scalarValue(raw string) any {
	if raw == "" {
		return ""
	}

	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case nil, bool, int, float64:
		return v
	case string:
		if strings.HasPrefix(raw, `"`) || strings.HasPrefix(raw, "'") {
			return v
		}
	}
	return raw
}
