package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSettings_Defaults(t *testing.T) {
	dir := t.TempDir()
	for _, k := range []string{ManifestEnv, "ONELINE_DATA_DIR", "ONELINE_LOG_LEVEL", "ONELINE_API_KEYS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	s, err := LoadSettings(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(dir, DefaultManifestName)
	if s.Manifest != want || s.ManifestExplicit {
		t.Errorf("expected default manifest %q, got %q (explicit=%v)", want, s.Manifest, s.ManifestExplicit)
	}
	if os.Getenv(ManifestEnv) != want {
		t.Errorf("expected %s written back", ManifestEnv)
	}
	if s.DataDir != dir {
		t.Errorf("expected data dir %q, got %q", dir, s.DataDir)
	}
	if s.SlogLevel() != slog.LevelInfo {
		t.Errorf("expected info level, got %v", s.SlogLevel())
	}
}

func TestLoadSettings_FromEnv(t *testing.T) {
	t.Setenv(ManifestEnv, "/etc/oneline/manifest.yaml")
	t.Setenv("ONELINE_LOG_LEVEL", "debug")
	t.Setenv("ONELINE_API_KEYS", "k1:alice,k2:bob")

	s, err := LoadSettings(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.ManifestExplicit || s.Manifest != "/etc/oneline/manifest.yaml" {
		t.Errorf("unexpected manifest %q", s.Manifest)
	}
	if s.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug, got %v", s.SlogLevel())
	}
	if s.APIKeys["k1"] != "alice" || s.APIKeys["k2"] != "bob" {
		t.Errorf("unexpected api keys %v", s.APIKeys)
	}
}

func TestLoadSettings_BadLevel(t *testing.T) {
	t.Setenv("ONELINE_LOG_LEVEL", "loud")
	if _, err := LoadSettings(t.TempDir()); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}
