// Package persistence defines the CRUD driver contract every storage backend
// implements. Backends live in subpackages: localfiles (default), sqlite,
// postgres and memory.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned when inserting a record whose id is taken.
	ErrExists = errors.New("record already exists")
)

// Record is a stored entity: an attribute map with a string "id" key.
type Record map[string]any

// ID returns the record's id, or "" when missing or not a string.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a deep copy of r through its JSON form.
func (r Record) Clone() (Record, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return out, nil
}

// Driver is a CRUD backend. Implementations are safe for concurrent use.
type Driver interface {
	// Name identifies the backend, e.g. "local_files".
	Name() string
	// MultiProcess reports whether writes are coordinated across processes.
	MultiProcess() bool

	Insert(ctx context.Context, table string, rec Record) error
	Find(ctx context.Context, table, id string) (Record, error)
	Update(ctx context.Context, table string, rec Record) error
	Delete(ctx context.Context, table, id string) error
	// All returns every record of table sorted by id.
	All(ctx context.Context, table string) ([]Record, error)

	Close() error
}

// Pinger is implemented by drivers that can check their backend for
// readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Validate checks the arguments shared by every driver operation.
func Validate(table string, rec Record) error {
	if table == "" {
		return errors.New("table name is required")
	}
	if rec != nil && rec.ID() == "" {
		return errors.New(`record "id" must be a non-empty string`)
	}
	return nil
}

// SortByID orders records by id in place.
func SortByID(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID() < recs[j].ID() })
}
