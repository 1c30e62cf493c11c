package tts

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseOptions parses an engine options string. JSON objects are accepted
// since they are valid YAML. An empty string yields an empty map.
func ParseOptions(s string) (map[string]any, error) {
	out := map[string]any{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}

	var node any
	if err := yaml.Unmarshal([]byte(s), &node); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if node == nil {
		return out, nil
	}

	m, ok := toStringMap(node)
	if !ok {
		return nil, fmt.Errorf("parse options: expected a mapping, got %T", node)
	}
	return m, nil
}

// ParseOptionPairs turns key=value pairs into an options map. Values are
// decoded as YAML scalars so numbers and booleans keep their type.
func ParseOptionPairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: option %q is not key=value", ErrInvalidRequest, p)
		}

		var val any
		if err := yaml.Unmarshal([]byte(v), &val); err != nil || val == nil {
			val = v
		}
		out[k] = val
	}
	return out, nil
}

// MergeOptions returns defaults overlaid by overrides. Neither input is
// modified.
func MergeOptions(defaults, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
