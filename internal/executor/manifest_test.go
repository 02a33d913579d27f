package executor

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFakeManifest(t *testing.T, dir, connectorID string) {
	t.Helper()
	connDir := filepath.Join(dir, connectorID)
	if err := os.MkdirAll(connDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", connDir, err)
	}

	command := filepath.Join(connDir, "run")
	if err := os.WriteFile(command, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fake command: %v", err)
	}

	toml := "command = " + `"` + command + `"` + "\nsupports_incremental = true\n"
	if err := os.WriteFile(filepath.Join(connDir, "connector.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("write connector.toml: %v", err)
	}
}

func TestLoadManifestsScansOneDirPerConnector(t *testing.T) {
	dir := t.TempDir()
	writeFakeManifest(t, dir, "postgres-source")
	writeFakeManifest(t, dir, "stripe-source")
	if err := os.MkdirAll(filepath.Join(dir, "not-a-connector"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	manifests, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("LoadManifests: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("got %d manifests, want 2: %+v", len(manifests), manifests)
	}
	if !manifests["postgres-source"].SupportsIncremental {
		t.Error("expected postgres-source to support incremental sync")
	}
}

func TestLoadManifestsSkipsSubdirsWithoutATomlFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	manifests, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("LoadManifests: %v", err)
	}
	if len(manifests) != 0 {
		t.Errorf("expected no manifests, got %d", len(manifests))
	}
}

func TestLoadManifestRejectsMissingCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connector.toml")
	if err := os.WriteFile(path, []byte(`command = "/does/not/exist"`), 0o644); err != nil {
		t.Fatalf("write connector.toml: %v", err)
	}

	if _, err := LoadManifest(path); err == nil {
		t.Error("expected an error for a manifest whose command doesn't exist")
	}
}
