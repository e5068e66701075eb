package persistence

import (
	"context"
	"encoding/json"
	"fmt"
)

// Repository stores entities of type T in one table of a Driver. T must
// encode to a JSON object with a string "id" field.
type Repository[T any] struct {
	driver Driver
	table  string
}

// NewRepository binds T to table on driver.
func NewRepository[T any](driver Driver, table string) *Repository[T] {
	return &Repository[T]{driver: driver, table: table}
}

// Table returns the table name.
func (r *Repository[T]) Table() string { return r.table }

func (r *Repository[T]) Insert(ctx context.Context, entity *T) error {
	rec, err := toRecord(entity)
	if err != nil {
		return err
	}
	return r.driver.Insert(ctx, r.table, rec)
}

func (r *Repository[T]) Update(ctx context.Context, entity *T) error {
	rec, err := toRecord(entity)
	if err != nil {
		return err
	}
	return r.driver.Update(ctx, r.table, rec)
}

func (r *Repository[T]) Find(ctx context.Context, id string) (*T, error) {
	rec, err := r.driver.Find(ctx, r.table, id)
	if err != nil {
		return nil, err
	}
	return fromRecord[T](rec)
}

func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	return r.driver.Delete(ctx, r.table, id)
}

// All returns every entity ordered by id.
func (r *Repository[T]) All(ctx context.Context) ([]*T, error) {
	recs, err := r.driver.All(ctx, r.table)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		entity, err := fromRecord[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func toRecord[T any](entity *T) (Record, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("encoding entity: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("entity must encode to an object: %w", err)
	}
	return rec, nil
}

func fromRecord[T any](rec Record) (*T, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("decoding record %q: %w", rec.ID(), err)
	}
	return &entity, nil
}
