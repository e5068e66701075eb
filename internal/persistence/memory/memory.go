// Package memory implements an in-process persistence.Driver.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jkaninda/oneline/internal/persistence"
)

// Driver keeps records JSON-encoded in maps so callers never share state
// with the store.
type Driver struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

// New returns an empty driver.
func New() *Driver {
	return &Driver{tables: make(map[string]map[string][]byte)}
}

func (d *Driver) Name() string { return "memory" }

// MultiProcess is always false: the data lives in this process only.
func (d *Driver) MultiProcess() bool { return false }

func (d *Driver) Insert(_ context.Context, table string, rec persistence.Record) error {
	if err := persistence.Validate(table, rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.tables[table]
	if t == nil {
		t = make(map[string][]byte)
		d.tables[table] = t
	}
	if _, ok := t[rec.ID()]; ok {
		return fmt.Errorf("%s/%s: %w", table, rec.ID(), persistence.ErrExists)
	}
	t[rec.ID()] = data
	return nil
}

func (d *Driver) Find(_ context.Context, table, id string) (persistence.Record, error) {
	d.mu.RLock()
	data, ok := d.tables[table][id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", table, id, persistence.ErrNotFound)
	}
	return decode(data)
}

func (d *Driver) Update(_ context.Context, table string, rec persistence.Record) error {
	if err := persistence.Validate(table, rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tables[table][rec.ID()]; !ok {
		return fmt.Errorf("%s/%s: %w", table, rec.ID(), persistence.ErrNotFound)
	}
	d.tables[table][rec.ID()] = data
	return nil
}

func (d *Driver) Delete(_ context.Context, table, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tables[table][id]; !ok {
		return fmt.Errorf("%s/%s: %w", table, id, persistence.ErrNotFound)
	}
	delete(d.tables[table], id)
	return nil
}

func (d *Driver) All(_ context.Context, table string) ([]persistence.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]persistence.Record, 0, len(d.tables[table]))
	for _, data := range d.tables[table] {
		rec, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	persistence.SortByID(out)
	return out, nil
}

func (d *Driver) Close() error { return nil }

func decode(data []byte) (persistence.Record, error) {
	var rec persistence.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}
