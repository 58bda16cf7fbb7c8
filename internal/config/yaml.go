package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// configToJSON prepares raw config bytes for the strict JSON decoder. Files
// with a .yaml/.yml extension are parsed and re-marshaled as JSON; anything
// else is assumed to be JSON already.
func configToJSON(path string, raw []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return raw, nil
	}

	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return json.Marshal(stringKeys(tree))
}

// stringKeys rewrites every map key to a string so the tree survives
// json.Marshal. yaml/v3 produces map[string]any for plain mappings, but
// anchors and merge keys can still yield map[any]any nodes.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = stringKeys(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = stringKeys(child)
		}
		return t
	default:
		return v
	}
}
