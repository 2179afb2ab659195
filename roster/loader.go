package roster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads roster data from a .yaml, .yml or .json file
func LoadFile(path string) (Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Data{}, fmt.Errorf("failed to read roster file %s: %w", path, err)
	}

	var data Data
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(raw, &data); err != nil {
			return Data{}, fmt.Errorf("failed to parse roster %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return Data{}, fmt.Errorf("failed to parse roster %s: %w", path, err)
		}
	default:
		return Data{}, fmt.Errorf("unsupported roster file extension %q", filepath.Ext(path))
	}

	return data, nil
}
