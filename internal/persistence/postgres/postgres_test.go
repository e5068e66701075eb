//go:build integration

package postgres

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/jkaninda/oneline/internal/persistence"
	"github.com/jkaninda/oneline/internal/persistence/persistencetest"
)

// Each subtest gets its own table prefix so runs never collide.
type prefixed struct {
	*Driver
	prefix string
}

func (p prefixed) Insert(ctx context.Context, table string, rec persistence.Record) error {
	return p.Driver.Insert(ctx, p.prefix+table, rec)
}

func (p prefixed) Find(ctx context.Context, table, id string) (persistence.Record, error) {
	return p.Driver.Find(ctx, p.prefix+table, id)
}

func (p prefixed) Update(ctx context.Context, table string, rec persistence.Record) error {
	return p.Driver.Update(ctx, p.prefix+table, rec)
}

func (p prefixed) Delete(ctx context.Context, table, id string) error {
	return p.Driver.Delete(ctx, p.prefix+table, id)
}

func (p prefixed) All(ctx context.Context, table string) ([]persistence.Record, error) {
	return p.Driver.All(ctx, p.prefix+table)
}

func TestDriver(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping integration test")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	d, err := Open(Config{DSN: dsn}, true, logger)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	persistencetest.Run(t, func(t *testing.T) persistence.Driver {
		return prefixed{Driver: d, prefix: uuid.NewString()[:8] + "_"}
	})
}
