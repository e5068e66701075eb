package localfiles

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jkaninda/oneline/internal/persistence"
	"github.com/jkaninda/oneline/internal/persistence/persistencetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openAt(t *testing.T, path string, multi bool) *Driver {
	t.Helper()
	d, err := Open(Config{Path: path, MultiProcess: multi}, discardLogger())
	if err != nil {
		t.Fatalf("opening driver: %v", err)
	}
	return d
}

func TestDriver_MultiProcess(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Driver {
		return openAt(t, filepath.Join(t.TempDir(), "local_data", "records.yml"), true)
	})
}

func TestDriver_SingleProcess(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Driver {
		return openAt(t, filepath.Join(t.TempDir(), "local_data", "records.yml"), false)
	})
}

func TestDriver_SharedFileAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yml")
	a := openAt(t, path, true)
	b := openAt(t, path, true)
	ctx := context.Background()

	if err := a.Insert(ctx, "loan_files", persistence.Record{"id": "lf-1", "state": "drafting"}); err != nil {
		t.Fatalf("insert via a: %v", err)
	}
	got, err := b.Find(ctx, "loan_files", "lf-1")
	if err != nil {
		t.Fatalf("b must see a's write: %v", err)
	}
	if got["state"] != "drafting" {
		t.Errorf("unexpected record %v", got)
	}

	if err := b.Update(ctx, "loan_files", persistence.Record{"id": "lf-1", "state": "needs_review"}); err != nil {
		t.Fatalf("update via b: %v", err)
	}
	got, err = a.Find(ctx, "loan_files", "lf-1")
	if err != nil || got["state"] != "needs_review" {
		t.Errorf("a must see b's update, got %v (err %v)", got, err)
	}

	if err := b.Insert(ctx, "loan_files", persistence.Record{"id": "lf-1"}); !errors.Is(err, persistence.ErrExists) {
		t.Errorf("expected ErrExists across instances, got %v", err)
	}
}

func TestDriver_SingleProcessReadsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yml")
	writer := openAt(t, path, true)
	if err := writer.Insert(context.Background(), "t", persistence.Record{"id": "before"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	d := openAt(t, path, false)
	if _, err := d.Find(context.Background(), "t", "before"); err != nil {
		t.Fatalf("existing data must be loaded at open: %v", err)
	}

	if err := writer.Insert(context.Background(), "t", persistence.Record{"id": "after"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := d.Find(context.Background(), "t", "after"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("single-process driver must not re-read the file, got %v", err)
	}
}

func TestDriver_FileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yml")
	d := openAt(t, path, false)
	if err := d.Insert(context.Background(), "loan_files", persistence.Record{"id": "lf-1", "applicant_name": "Ada"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	content := string(raw)
	for _, want := range []string{"loan_files:", "lf-1:", "applicant_name: Ada"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected %q in file:\n%s", want, content)
		}
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yml")
	if err := os.WriteFile(path, []byte("loan_files: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(Config{Path: path}, discardLogger()); err == nil {
		t.Fatal("expected parse error for corrupt file")
	}
}
