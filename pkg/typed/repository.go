package typed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/keel/pkg/core"
)

// Resource wraps a stored value with a typed Data field.
// It acts as a typed view of a resource.
type Resource[T any] struct {
	Key   string
	Data  T
	Saver Saver[T] // Active Record reference interface
}

// Saver interface avoids tight coupling with Repository/Transaction structs.
type Saver[T any] interface {
	Save(ctx context.Context, res *Resource[T]) error
}

// Save persists the resource using the attached saver (Repository or Transaction).
func (r *Resource[T]) Save(ctx context.Context) error {
	if r.Saver == nil {
		return fmt.Errorf("resource is detached (missing Saver)")
	}
	return r.Saver.Save(ctx, r)
}

// Repository wraps a core.Store to provide type-safe access.
type Repository[T any] struct {
	store core.Store
}

// NewRepository creates a new type-safe wrapper around an existing store.
func NewRepository[T any](store core.Store) *Repository[T] {
	return &Repository[T]{store: store}
}

// Save persists a typed resource.
func (r *Repository[T]) Save(ctx context.Context, res *Resource[T]) error {
	v, err := ToValue(res.Data)
	if err != nil {
		return err
	}

	// Attach saver
	if res.Saver == nil {
		res.Saver = r
	}
	return r.store.Write(ctx, res.Key, v)
}

// Get retrieves a resource and decodes it into T.
func (r *Repository[T]) Get(ctx context.Context, key string) (*Resource[T], error) {
	v, err := r.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return fromValue(key, v, r)
}

// ToValue converts typed data into a Value through its JSON representation.
func ToValue(data any) (core.Value, error) {
	v, err := core.FromAny(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert typed data: %w", err)
	}
	return v, nil
}

// Decode converts a Value into T through its JSON representation.
func Decode[T any](v core.Value) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("value marshal failed: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unmarshal to target type failed: %w", err)
	}
	return out, nil
}

// Helper to convert a stored Value to a Resource
func fromValue[T any](key string, v core.Value, saver Saver[T]) (*Resource[T], error) {
	data, err := Decode[T](v)
	if err != nil {
		return nil, err
	}
	return &Resource[T]{Key: key, Data: data, Saver: saver}, nil
}
