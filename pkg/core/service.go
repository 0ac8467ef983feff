package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTransactionsCategory is the audit category receiving every
// transaction outcome.
const DefaultTransactionsCategory = "transactions"

// Work is a unit of work run by the orchestrator.
type Work func(ctx context.Context, tx *Tx) (any, error)

// TxResult is the outcome of Execute.
type TxResult[T any] struct {
	Success       bool
	TransactionID string
	Status        TxStatus
	Result        T
	Err           error
	Steps         []Step
	Duration      time.Duration
	DurationMs    int64
	// RecordErr is set when the outcome could not be appended to the
	// transactions category. It never changes Status.
	RecordErr error
}

// OrchestratorConfig holds the dependencies of an Orchestrator.
type OrchestratorConfig struct {
	Category string // defaults to DefaultTransactionsCategory
	Clock    Clock
	Logger   *slog.Logger
	Observer Observer
	NewID    func() string // defaults to uuid.NewString
}

// Orchestrator runs units of work against a Store and an AuditLog and
// records each outcome in the audit log.
type Orchestrator struct {
	store    Store
	log      AuditLog
	category string
	clock    Clock
	logger   *slog.Logger
	observer Observer
	newID    func() string

	mu         sync.RWMutex
	active     map[string]time.Time
	committed  int64
	rolledBack int64
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(store Store, log AuditLog, cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		log:      log,
		category: cfg.Category,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		newID:    cfg.NewID,
		active:   make(map[string]time.Time),
	}
	if o.category == "" {
		o.category = DefaultTransactionsCategory
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o
}

// Store returns the underlying store for direct, non-transactional writes.
func (o *Orchestrator) Store() Store { return o.store }

// Log returns the underlying audit log for direct appends.
func (o *Orchestrator) Log() AuditLog { return o.log }

// Category returns the audit category receiving transaction records.
func (o *Orchestrator) Category() string { return o.category }

type outcome struct {
	result any
	err    error
}

// Execute runs work inside a transaction.
//
// Workflow:
//  1. Allocate an ID and record BEGIN.
//  2. Run work. A returned error, a panic, ctx expiring or a write or append
//     the handle refused to stage all count as failure.
//  3. On success, apply staged writes then staged audit entries (COMMIT).
//     If applying fails, restore the writes already applied (ROLLBACK).
//  4. Append the full trace to the transactions category, whatever the outcome.
func (o *Orchestrator) Execute(ctx context.Context, work Work) TxResult[any] {
	start := o.clock()
	tx := newTx(o, o.newID(), start)
	tx.record(OpBegin, Object{"transactionId": String(tx.id)})

	o.track(tx.id, start)
	defer o.untrack(tx.id)

	o.logger.Debug("transaction started", "id", tx.id)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("unit of work panicked: %v", r)}
			}
		}()
		res, err := work(ctx, tx)
		done <- outcome{result: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	staged, appends, rejected := tx.close()
	if out.err == nil {
		out.err = rejected
	}
	if out.err == nil {
		out.err = o.commit(ctx, tx, staged, appends)
	}

	status := StatusCommitted
	if out.err != nil {
		status = StatusRolledBack
		tx.record(OpRollback, Object{"error": String(out.err.Error())})
	} else {
		tx.record(OpCommit, Object{})
	}
	tx.setStatus(status)

	duration := o.clock().Sub(start)
	res := TxResult[any]{
		Success:       out.err == nil,
		TransactionID: tx.id,
		Status:        status,
		Err:           out.err,
		Steps:         tx.Steps(),
		Duration:      duration,
		DurationMs:    duration.Milliseconds(),
	}
	if out.err == nil {
		res.Result = out.result
	}

	res.RecordErr = o.persist(ctx, tx.id, start, res)
	if res.RecordErr != nil {
		o.logger.Error("failed to record transaction", "id", tx.id, "error", res.RecordErr)
	}

	o.count(status)
	o.observer.ObserveTransaction(status, duration)
	if out.err != nil {
		o.logger.Debug("transaction rolled back", "id", tx.id, "error", out.err)
	} else {
		o.logger.Debug("transaction committed", "id", tx.id, "duration", duration)
	}

	return res
}

type applied struct {
	key     string
	data    []byte
	existed bool
}

// commit applies staged writes in key order, then staged audit entries.
func (o *Orchestrator) commit(ctx context.Context, tx *Tx, staged map[string]Value, appends []stagedAppend) error {
	keys := make([]string, 0, len(staged))
	for k := range staged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	snap, canSnapshot := o.store.(Snapshotter)
	var done []applied

	for _, key := range keys {
		a := applied{key: key}
		var err error
		if canSnapshot {
			a.data, a.existed, err = snap.Swap(ctx, key, staged[key])
		} else {
			err = o.store.Write(ctx, key, staged[key])
		}
		if err != nil {
			o.compensate(ctx, tx, done)
			return fmt.Errorf("write %s: %w", key, err)
		}
		done = append(done, a)
		tx.record(OpFileWrite, Object{"key": String(key)})
	}

	for _, ap := range appends {
		entry, err := o.log.Append(ctx, ap.category, ap.action, ap.details)
		if err != nil {
			o.compensate(ctx, tx, done)
			return fmt.Errorf("append %s/%s: %w", ap.category, ap.action, err)
		}
		tx.record(OpAudit, Object{
			"category":   String(ap.category),
			"action":     String(ap.action),
			"sequenceId": Int(entry.SequenceID),
		})
	}
	return nil
}

// compensate puts back the previous content of keys already written by a
// failed commit. Audit entries are permanent and are never compensated.
func (o *Orchestrator) compensate(ctx context.Context, tx *Tx, done []applied) {
	if len(done) == 0 {
		return
	}
	snap, ok := o.store.(Snapshotter)
	if !ok {
		tx.record(OpCompensate, Object{"restored": Array{}, "error": String("store cannot restore snapshots")})
		return
	}

	ctx = context.WithoutCancel(ctx)
	restored := Array{}
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		a := done[i]
		if err := snap.Restore(ctx, a.key, a.data, a.existed); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.key, err))
			continue
		}
		restored = append(restored, String(a.key))
	}

	details := Object{"restored": restored}
	if err := errors.Join(errs...); err != nil {
		details["error"] = String(err.Error())
		o.logger.Error("compensation incomplete", "id", tx.id, "error", err)
	}
	tx.record(OpCompensate, details)
}

// persist appends the transaction record. It ignores cancellation of ctx so
// that timed-out transactions are still recorded.
func (o *Orchestrator) persist(ctx context.Context, id string, start time.Time, res TxResult[any]) error {
	steps := make(Array, len(res.Steps))
	for i, s := range res.Steps {
		steps[i] = s.value()
	}
	details := Object{
		"transactionId": String(id),
		"status":        String(res.Status),
		"startTime":     String(start.UTC().Format(TimestampLayout)),
		"durationMs":    Int(res.DurationMs),
		"steps":         steps,
	}
	if res.Err != nil {
		details["error"] = String(res.Err.Error())
	}

	action := "TRANSACTION_COMMITTED"
	if res.Status == StatusRolledBack {
		action = "TRANSACTION_ROLLED_BACK"
	}
	_, err := o.log.Append(context.WithoutCancel(ctx), o.category, action, details)
	return err
}

func (o *Orchestrator) track(id string, start time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[id] = start
}

func (o *Orchestrator) untrack(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, id)
}

func (o *Orchestrator) count(status TxStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if status == StatusCommitted {
		o.committed++
	} else {
		o.rolledBack++
	}
}
