// Package persistencetest holds the behavioural suite every
// persistence.Driver must pass.
package persistencetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jkaninda/oneline/internal/persistence"
)

// Run exercises open's driver through the full CRUD contract. open is called
// once per subtest and must return an empty driver.
func Run(t *testing.T, open func(t *testing.T) persistence.Driver) {
	t.Run("InsertFind", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()
		rec := persistence.Record{"id": "a", "name": "Alice", "nested": map[string]any{"score": 700.0}}
		if err := d.Insert(ctx, "people", rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, err := d.Find(ctx, "people", "a")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got["name"] != "Alice" {
			t.Errorf("expected name Alice, got %v", got["name"])
		}
		nested, ok := got["nested"].(map[string]any)
		if !ok || fmt.Sprint(nested["score"]) != "700" {
			t.Errorf("nested attributes not preserved: %#v", got["nested"])
		}
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()
		if err := d.Insert(ctx, "people", persistence.Record{"id": "a"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		err := d.Insert(ctx, "people", persistence.Record{"id": "a"})
		if !errors.Is(err, persistence.ErrExists) {
			t.Fatalf("expected ErrExists, got %v", err)
		}
	})

	t.Run("TablesAreIsolated", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()
		if err := d.Insert(ctx, "people", persistence.Record{"id": "a"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := d.Insert(ctx, "pets", persistence.Record{"id": "a"}); err != nil {
			t.Fatalf("same id in another table must be allowed: %v", err)
		}
		if _, err := d.Find(ctx, "cars", "a"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()
		if err := d.Insert(ctx, "people", persistence.Record{"id": "a", "name": "Alice"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := d.Update(ctx, "people", persistence.Record{"id": "a", "name": "Alicia"}); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, err := d.Find(ctx, "people", "a")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got["name"] != "Alicia" {
			t.Errorf("expected updated name, got %v", got["name"])
		}
		err = d.Update(ctx, "people", persistence.Record{"id": "missing"})
		if !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()
		if err := d.Insert(ctx, "people", persistence.Record{"id": "a"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := d.Delete(ctx, "people", "a"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := d.Find(ctx, "people", "a"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := d.Delete(ctx, "people", "a"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("AllSorted", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()
		for _, id := range []string{"c", "a", "b"} {
			if err := d.Insert(ctx, "people", persistence.Record{"id": id}); err != nil {
				t.Fatalf("insert %s: %v", id, err)
			}
		}
		all, err := d.All(ctx, "people")
		if err != nil {
			t.Fatalf("all: %v", err)
		}
		if len(all) != 3 || all[0].ID() != "a" || all[1].ID() != "b" || all[2].ID() != "c" {
			t.Errorf("expected a,b,c got %v", all)
		}
		empty, err := d.All(ctx, "nothing")
		if err != nil || len(empty) != 0 {
			t.Errorf("expected empty table, got %v (err %v)", empty, err)
		}
	})

	t.Run("RejectsMissingID", func(t *testing.T) {
		d := open(t)
		if err := d.Insert(context.Background(), "people", persistence.Record{"name": "x"}); err == nil {
			t.Fatal("expected error for record without id")
		}
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()
		if err := d.Insert(ctx, "people", persistence.Record{"id": "a", "name": "Alice"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, _ := d.Find(ctx, "people", "a")
		got["name"] = "mutated"
		again, _ := d.Find(ctx, "people", "a")
		if again["name"] != "Alice" {
			t.Errorf("driver state leaked through returned record")
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		d := open(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := d.Insert(ctx, "people", persistence.Record{"id": fmt.Sprintf("p%02d", i)}); err != nil {
					t.Errorf("insert %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()
		all, err := d.All(ctx, "people")
		if err != nil {
			t.Fatalf("all: %v", err)
		}
		if len(all) != 20 {
			t.Errorf("expected 20 records, got %d", len(all))
		}
	})
}
