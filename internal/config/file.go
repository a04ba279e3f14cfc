package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a configuration file: a flat YAML mapping of option name to
// scalar value, e.g.
//
//	suite: noble
//	mem: 512
//	in-place: true
//
// If mustExist is false, a missing file yields an empty mapping.
func LoadFile(path string, mustExist bool) (map[string]string, error) {
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	values := make(map[string]string, len(raw))
	for name, node := range raw {
		if node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("config file %s: value of %q must be a scalar", path, name)
		}
		values[name] = node.Value
	}

	return values, nil
}
