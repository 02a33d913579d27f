package executor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest describes a subprocess connector: how to invoke it and what it
// declares it can do. Read once, at registry construction, from a
// connector.toml file alongside the connector executable.
type Manifest struct {
	// Command is the path to the connector executable.
	Command string `toml:"command"`
	// WorkingDir is decoded from the manifest but not read by
	// SubprocessBackend, which always writes this connector's temp
	// config/catalog/state files under its executor-wide working directory.
	WorkingDir string `toml:"working_dir"`
	// SupportsIncremental and SupportsNormalization mirror the
	// capabilities a SPEC message would otherwise declare. They are
	// decoded from the manifest; no executor code checks them before
	// launching a connector.
	SupportsIncremental   bool `toml:"supports_incremental"`
	SupportsNormalization bool `toml:"supports_normalization"`
}

// LoadManifest reads and validates a connector.toml file.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return Manifest{}, fmt.Errorf("executor: decode manifest %s: %w", path, err)
	}
	if m.Command == "" {
		return Manifest{}, fmt.Errorf("executor: manifest %s missing command", path)
	}
	if _, err := os.Stat(m.Command); err != nil {
		return Manifest{}, fmt.Errorf("executor: manifest %s command %q not found: %w", path, m.Command, err)
	}
	return m, nil
}

// LoadManifests scans dir for one subdirectory per connector, each
// containing a connector.toml, and returns the resulting connector-id to
// Manifest map. A connector whose manifest fails to load is skipped with
// its error collected rather than aborting the whole scan.
func LoadManifests(dir string) (map[string]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("executor: read connector directory %s: %w", dir, err)
	}

	manifests := make(map[string]Manifest)
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		connectorID := entry.Name()
		path := filepath.Join(dir, connectorID, "connector.toml")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := LoadManifest(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		manifests[connectorID] = m
	}

	if len(errs) > 0 {
		return manifests, fmt.Errorf("executor: %d connector manifest(s) failed to load: %v", len(errs), errs[0])
	}
	return manifests, nil
}
