package typed

import (
	"context"

	"github.com/aretw0/keel/pkg/core"
)

// Execute runs work inside a transaction of o and returns a typed result.
// Result is the zero value of R unless the transaction committed.
func Execute[R any](ctx context.Context, o *core.Orchestrator, work func(ctx context.Context, tx *core.Tx) (R, error)) core.TxResult[R] {
	res := o.Execute(ctx, func(ctx context.Context, tx *core.Tx) (any, error) {
		r, err := work(ctx, tx)
		return r, err
	})

	out := core.TxResult[R]{
		Success:       res.Success,
		TransactionID: res.TransactionID,
		Status:        res.Status,
		Err:           res.Err,
		Steps:         res.Steps,
		Duration:      res.Duration,
		DurationMs:    res.DurationMs,
		RecordErr:     res.RecordErr,
	}
	if r, ok := res.Result.(R); ok {
		out.Result = r
	}
	return out
}

// Transaction wraps a core.Tx for typed operations.
type Transaction[T any] struct {
	tx *core.Tx
}

// NewTransaction creates a typed view of tx.
func NewTransaction[T any](tx *core.Tx) *Transaction[T] {
	return &Transaction[T]{tx: tx}
}

// Save stages a typed resource within the transaction.
func (t *Transaction[T]) Save(ctx context.Context, res *Resource[T]) error {
	v, err := ToValue(res.Data)
	if err != nil {
		return err
	}
	if res.Saver == nil {
		res.Saver = t
	}
	return t.tx.Write(ctx, res.Key, v)
}

// Get retrieves a resource within the transaction, staged values first.
func (t *Transaction[T]) Get(ctx context.Context, key string) (*Resource[T], error) {
	v, err := t.tx.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return fromValue(key, v, t)
}

// Append stages an audit entry whose details are the JSON form of details.
func (t *Transaction[T]) Append(ctx context.Context, category, action string, details any) error {
	v, err := ToValue(details)
	if err != nil {
		return err
	}
	return t.tx.Append(ctx, category, action, v)
}
