package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	// ManifestEnv names the variable pointing at the dependency manifest.
	ManifestEnv = "ONELINE_MANIFEST"
	// DefaultManifestName is the manifest file looked up in the boot directory.
	DefaultManifestName = "oneline.yaml"
)

// Settings are the process-level knobs read from the environment.
type Settings struct {
	Mode        string            `env:"FOOBARA_ENV" envDefault:"development"`
	Manifest    string            `env:"ONELINE_MANIFEST"`
	DataDir     string            `env:"ONELINE_DATA_DIR"`
	LogLevel    string            `env:"ONELINE_LOG_LEVEL" envDefault:"info"`
	DatabaseDSN string            `env:"ONELINE_DB_DSN"`
	APIKeys     map[string]string `env:"ONELINE_API_KEYS" envSeparator:"," envKeyValSeparator:":"`

	// ManifestExplicit is true when ONELINE_MANIFEST was set by the caller.
	ManifestExplicit bool
}

// LoadSettings parses Settings from the environment. Paths default to dir;
// an unset ONELINE_MANIFEST is written back so later lookups see it.
func LoadSettings(dir string) (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if s.Manifest == "" {
		s.Manifest = filepath.Join(dir, DefaultManifestName)
		if err := setEnv(ManifestEnv, s.Manifest); err != nil {
			return nil, err
		}
	} else {
		s.ManifestExplicit = true
	}
	if s.DataDir == "" {
		s.DataDir = dir
	}

	if _, err := parseLevel(s.LogLevel); err != nil {
		return nil, err
	}
	return &s, nil
}

// SlogLevel maps LogLevel onto slog; unknown values were rejected at load.
func (s *Settings) SlogLevel() slog.Level {
	lvl, _ := parseLevel(s.LogLevel)
	return lvl
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("ONELINE_LOG_LEVEL %q is not supported (use debug, info, warn or error)", level)
	}
}
