// Package localfiles implements the default persistence.Driver: every table
// lives in a single YAML file on disk.
//
// In multi-process mode each operation takes an advisory lock on
// "<file>.lock", re-reads the file and, for mutations, rewrites it through a
// temp file and rename, so separate processes sharing the file see each
// other's writes. Otherwise the file is read once at Open and written through
// on every mutation.
package localfiles

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jkaninda/oneline/internal/persistence"
)

// tables maps table name → id → record.
type tables map[string]map[string]persistence.Record

// Config configures the driver.
type Config struct {
	Path         string // YAML file, created on first write.
	MultiProcess bool
}

// Driver implements persistence.Driver on a YAML file.
type Driver struct {
	path   string
	multi  bool
	logger *slog.Logger

	mu    sync.Mutex
	cache tables // single-process mode only
}

// Open prepares the driver. The parent directory is created when missing.
func Open(cfg Config, logger *slog.Logger) (*Driver, error) {
	if cfg.Path == "" {
		return nil, errors.New("local files path is required")
	}
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
	}

	d := &Driver{path: cfg.Path, multi: cfg.MultiProcess, logger: logger}
	if !d.multi {
		data, err := d.read()
		if err != nil {
			return nil, err
		}
		d.cache = data
	}

	logger.Info("local files store opened",
		slog.String("path", cfg.Path),
		slog.Bool("multi_process", cfg.MultiProcess),
	)
	return d, nil
}

func (d *Driver) Name() string { return "local_files" }

func (d *Driver) MultiProcess() bool { return d.multi }

// Path returns the YAML file backing the driver.
func (d *Driver) Path() string { return d.path }

func (d *Driver) Insert(_ context.Context, table string, rec persistence.Record) error {
	if err := persistence.Validate(table, rec); err != nil {
		return err
	}
	rec, err := rec.Clone()
	if err != nil {
		return err
	}
	return d.update(func(data tables) error {
		t := data[table]
		if t == nil {
			t = make(map[string]persistence.Record)
			data[table] = t
		}
		if _, ok := t[rec.ID()]; ok {
			return fmt.Errorf("%s/%s: %w", table, rec.ID(), persistence.ErrExists)
		}
		t[rec.ID()] = rec
		return nil
	})
}

func (d *Driver) Find(_ context.Context, table, id string) (persistence.Record, error) {
	var out persistence.Record
	err := d.view(func(data tables) error {
		rec, ok := data[table][id]
		if !ok {
			return fmt.Errorf("%s/%s: %w", table, id, persistence.ErrNotFound)
		}
		var err error
		out, err = rec.Clone()
		return err
	})
	return out, err
}

func (d *Driver) Update(_ context.Context, table string, rec persistence.Record) error {
	if err := persistence.Validate(table, rec); err != nil {
		return err
	}
	rec, err := rec.Clone()
	if err != nil {
		return err
	}
	return d.update(func(data tables) error {
		if _, ok := data[table][rec.ID()]; !ok {
			return fmt.Errorf("%s/%s: %w", table, rec.ID(), persistence.ErrNotFound)
		}
		data[table][rec.ID()] = rec
		return nil
	})
}

func (d *Driver) Delete(_ context.Context, table, id string) error {
	return d.update(func(data tables) error {
		if _, ok := data[table][id]; !ok {
			return fmt.Errorf("%s/%s: %w", table, id, persistence.ErrNotFound)
		}
		delete(data[table], id)
		if len(data[table]) == 0 {
			delete(data, table)
		}
		return nil
	})
}

func (d *Driver) All(_ context.Context, table string) ([]persistence.Record, error) {
	var out []persistence.Record
	err := d.view(func(data tables) error {
		out = make([]persistence.Record, 0, len(data[table]))
		for _, rec := range data[table] {
			c, err := rec.Clone()
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	persistence.SortByID(out)
	return out, nil
}

// Ping checks that the data directory is still reachable.
func (d *Driver) Ping(_ context.Context) error {
	_, err := os.Stat(filepath.Dir(d.path))
	return err
}

func (d *Driver) Close() error { return nil }

// view runs fn against a consistent snapshot of the file.
func (d *Driver) view(fn func(tables) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.multi {
		return fn(d.cache)
	}

	unlock, err := lockFile(d.lockPath(), false)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := d.read()
	if err != nil {
		return err
	}
	return fn(data)
}

// update runs fn against the current contents and persists the result when
// fn succeeds.
func (d *Driver) update(fn func(tables) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.multi {
		if err := fn(d.cache); err != nil {
			return err
		}
		if err := d.write(d.cache); err != nil {
			// Resync with what is on disk so the cache never runs ahead.
			if data, rerr := d.read(); rerr == nil {
				d.cache = data
			}
			return err
		}
		return nil
	}

	unlock, err := lockFile(d.lockPath(), true)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := d.read()
	if err != nil {
		return err
	}
	if err := fn(data); err != nil {
		return err
	}
	return d.write(data)
}

func (d *Driver) lockPath() string { return d.path + ".lock" }

func (d *Driver) read() (tables, error) {
	raw, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(tables), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.path, err)
	}
	data := make(tables)
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", d.path, err)
	}
	if data == nil {
		data = make(tables)
	}
	return data, nil
}

func (d *Driver) write(data tables) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), "."+filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("replacing %s: %w", d.path, err)
	}
	return nil
}
