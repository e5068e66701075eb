package config

import (
	"os"
	"strings"
	"testing"
)

func TestResolveMode_DefaultsAndWritesBack(t *testing.T) {
	t.Setenv(ModeEnv, "")
	os.Unsetenv(ModeEnv)

	got, err := ResolveMode()
	if err != nil {
		t.Fatalf("ResolveMode: %v", err)
	}
	if got != DefaultMode {
		t.Fatalf("expected %q, got %q", DefaultMode, got)
	}
	if v, ok := os.LookupEnv(ModeEnv); !ok || v != DefaultMode {
		t.Errorf("expected %s=%s in environment, got %q (set=%v)", ModeEnv, DefaultMode, v, ok)
	}
}

func TestResolveMode_Explicit(t *testing.T) {
	t.Setenv(ModeEnv, "staging")
	if got, err := ResolveMode(); err != nil || got != "staging" {
		t.Fatalf("expected staging, got %q (%v)", got, err)
	}
}

func TestSetEnvReportsKey(t *testing.T) {
	err := setEnv("BAD=KEY", "x")
	if err == nil || !strings.Contains(err.Error(), "BAD=KEY") {
		t.Fatalf("setEnv with an invalid key = %v, want error naming the key", err)
	}
}

func TestDotenvFiles(t *testing.T) {
	got := DotenvFiles("development")
	want := []string{".env.development.local", ".env.local", ".env.development", ".env"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("file %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	for _, f := range DotenvFiles(TestMode) {
		if f == ".env.local" {
			t.Error(".env.local must be skipped in test mode")
		}
	}
}

func TestLoadDotenv_Layering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "ONELINE_T_LAYER=base\nONELINE_T_BASE_ONLY=yes\n")
	writeFile(t, dir, ".env.development.local", "ONELINE_T_LAYER=local\n")
	writeFile(t, dir, ".env.development", "ONELINE_T_LAYER=mode\nONELINE_T_PRESET=file\n")

	t.Setenv("ONELINE_T_PRESET", "process")
	t.Setenv("ONELINE_T_LAYER", "")
	os.Unsetenv("ONELINE_T_LAYER")
	t.Setenv("ONELINE_T_BASE_ONLY", "")
	os.Unsetenv("ONELINE_T_BASE_ONLY")

	loaded, err := LoadDotenv("development", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != 3 {
		t.Errorf("expected 3 files loaded, got %v", loaded)
	}
	if got := os.Getenv("ONELINE_T_LAYER"); got != "local" {
		t.Errorf(".env.<mode>.local must win, got %q", got)
	}
	if got := os.Getenv("ONELINE_T_PRESET"); got != "process" {
		t.Errorf("process environment must not be overridden, got %q", got)
	}
	if got := os.Getenv("ONELINE_T_BASE_ONLY"); got != "yes" {
		t.Errorf("expected value from .env, got %q", got)
	}
}

func TestLoadDotenv_TestModeSkipsLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.local", "ONELINE_T_SKIP=local\n")
	t.Setenv("ONELINE_T_SKIP", "")
	os.Unsetenv("ONELINE_T_SKIP")

	loaded, err := LoadDotenv(TestMode, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected no files, got %v", loaded)
	}
	if _, ok := os.LookupEnv("ONELINE_T_SKIP"); ok {
		t.Error(".env.local must not load in test mode")
	}
}

func TestLoadDotenv_NoFiles(t *testing.T) {
	loaded, err := LoadDotenv("production", t.TempDir())
	if err != nil {
		t.Fatalf("missing files must not be an error: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected nothing loaded, got %v", loaded)
	}
}

func TestLoadDotenv_Unparseable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "BAD-KEY=1\n")
	if _, err := LoadDotenv("production", dir); err == nil {
		t.Fatal("expected parse error")
	}
}
