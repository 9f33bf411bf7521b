package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a manifest from the given file path.
//
// The format is determined by extension: .yaml/.yml for YAML, .json for
// JSON. An unrecognized extension tries YAML first, then JSON.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest file not found: %s", path)
		}
		return nil, fmt.Errorf("read manifest file: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a manifest from raw bytes. The path is
// used only for format detection and error messages.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	var m Manifest
	var parseErr error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parseErr = yaml.Unmarshal(data, &m)
	case ".json":
		parseErr = json.Unmarshal(data, &m)
	default:
		if parseErr = yaml.Unmarshal(data, &m); parseErr != nil {
			if jsonErr := json.Unmarshal(data, &m); jsonErr == nil {
				parseErr = nil
			}
		}
	}
	if parseErr != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, parseErr)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}
