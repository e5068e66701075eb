package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	goutils "github.com/jkaninda/go-utils"
	"github.com/joho/godotenv"
)

const (
	// ModeEnv names the variable holding the deployment mode.
	ModeEnv = "FOOBARA_ENV"
	// DefaultMode is used when ModeEnv is unset or empty.
	DefaultMode = "development"
	// TestMode skips .env.local so test runs are reproducible.
	TestMode = "test"
)

// ResolveMode returns the deployment mode. An unset or empty FOOBARA_ENV is
// set to DefaultMode so child processes and later lookups agree.
func ResolveMode() (string, error) {
	mode := goutils.Env(ModeEnv, DefaultMode)
	if mode == "" {
		mode = DefaultMode
	}
	if os.Getenv(ModeEnv) != mode {
		if err := setEnv(ModeEnv, mode); err != nil {
			return "", err
		}
	}
	return mode, nil
}

// setEnv writes a resolved value back to the process environment.
func setEnv(key, value string) error {
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// DotenvFiles lists the dotenv files for mode, highest precedence first.
func DotenvFiles(mode string) []string {
	files := []string{".env." + mode + ".local"}
	if mode != TestMode {
		files = append(files, ".env.local")
	}
	return append(files, ".env."+mode, ".env")
}

// LoadDotenv loads the layered dotenv files found in dir and returns the
// paths that were loaded. Variables already in the environment are never
// overwritten, and an earlier file wins over a later one.
func LoadDotenv(mode, dir string) ([]string, error) {
	var loaded []string
	for _, name := range DotenvFiles(mode) {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return loaded, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("loading %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}
