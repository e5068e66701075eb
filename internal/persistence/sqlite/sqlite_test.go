package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jkaninda/oneline/internal/persistence"
	"github.com/jkaninda/oneline/internal/persistence/persistencetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDriver(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Driver {
		d, err := Open(Config{Path: filepath.Join(t.TempDir(), "oneline.db")}, true, discardLogger())
		if err != nil {
			t.Fatalf("opening sqlite: %v", err)
		}
		t.Cleanup(func() { d.Close() })
		return d
	})
}

func TestOpen_SharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oneline.db")
	a, err := Open(Config{Path: path}, true, discardLogger())
	if err != nil {
		t.Fatalf("opening a: %v", err)
	}
	defer a.Close()
	b, err := Open(Config{Path: path}, true, discardLogger())
	if err != nil {
		t.Fatalf("opening b: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	if err := a.Insert(ctx, "loan_files", persistence.Record{"id": "lf-1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := b.Find(ctx, "loan_files", "lf-1"); err != nil {
		t.Fatalf("second connection must see the record: %v", err)
	}
	if a.Name() != "sqlite" || !a.MultiProcess() {
		t.Errorf("unexpected driver identity %s/%v", a.Name(), a.MultiProcess())
	}
	if err := a.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}, true, discardLogger()); err == nil {
		t.Fatal("expected error for empty path")
	}
}
