package boot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkaninda/oneline/internal/config"
	"github.com/jkaninda/oneline/internal/persistence"
	"github.com/jkaninda/oneline/internal/persistence/localfiles"
	"github.com/jkaninda/oneline/internal/persistence/memory"
	"github.com/jkaninda/oneline/internal/persistence/postgres"
	"github.com/jkaninda/oneline/internal/persistence/sqlite"
	"github.com/jkaninda/oneline/internal/workspace"
)

// OpenDriver constructs the runtime's single CRUD driver from the manifest.
// Relative paths resolve against the workspace root.
func OpenDriver(m *config.Manifest, ws *workspace.Workspace, logger *slog.Logger) (persistence.Driver, error) {
	p := m.Persistence
	multi := p.IsMultiProcess()

	switch p.Driver {
	case config.DriverLocalFiles, "":
		path := ws.Resolve(p.LocalFiles.Path)
		if err := ws.EnsureParent(path); err != nil {
			return nil, err
		}
		d, err := localfiles.Open(localfiles.Config{Path: path, MultiProcess: multi}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening local files store: %w", err)
		}
		return d, nil

	case config.DriverSQLite:
		path := ws.Resolve(p.SQLite.Path)
		if err := ws.EnsureParent(path); err != nil {
			return nil, err
		}
		d, err := sqlite.Open(sqlite.Config{Path: path, JournalMode: p.SQLite.JournalMode}, multi, logger)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return d, nil

	case config.DriverPostgres:
		d, err := postgres.Open(postgres.Config{
			DSN:             p.Postgres.DSN,
			MaxOpenConns:    p.Postgres.MaxOpenConns,
			MaxIdleConns:    p.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(p.Postgres.ConnMaxLifetimeS) * time.Second,
		}, multi, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return d, nil

	case config.DriverMemory:
		if multi {
			logger.Warn("memory driver cannot coordinate processes; multi_process ignored")
		}
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported persistence driver %q", p.Driver)
	}
}

// pingCheck adapts a driver for the readiness probe.
func pingCheck(d persistence.Driver) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if p, ok := d.(persistence.Pinger); ok {
			return p.Ping(ctx)
		}
		return nil
	}
}
