package bundle

import (
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"
)

// Manifest describes the script payload: library modules in dependency
// order, followed by a single entrypoint.
type Manifest struct {
	Modules    []string `yaml:"modules"`
	Entrypoint string   `yaml:"entrypoint"`
}

func loadManifest(fsys fs.FS, path string) (*Manifest, error) {
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Entrypoint == "" {
		return nil, fmt.Errorf("manifest %s has no entrypoint", path)
	}
	if len(m.Modules) == 0 {
		return nil, fmt.Errorf("manifest %s lists no modules", path)
	}
	return &m, nil
}
