package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TxStatus is the state of a transaction.
type TxStatus string

const (
	StatusPending    TxStatus = "PENDING"
	StatusCommitted  TxStatus = "COMMITTED"
	StatusRolledBack TxStatus = "ROLLED_BACK"
)

// Step operations recorded by the orchestrator itself.
const (
	OpBegin      = "BEGIN"
	OpCommit     = "COMMIT"
	OpRollback   = "ROLLBACK"
	OpFileWrite  = "FILE_WRITE"
	OpAudit      = "AUDIT_APPEND"
	OpCompensate = "COMPENSATE"
	OpCheck      = "CONSISTENCY_CHECK"
)

// Step is one entry of a transaction's ordered trace.
type Step struct {
	Sequence  int    `json:"sequence"`
	Operation string `json:"operation"`
	Details   Value  `json:"details"`
	Timestamp string `json:"timestamp"`
}

func (s Step) value() Object {
	details := s.Details
	if details == nil {
		details = Object{}
	}
	return Object{
		"sequence":  Int(s.Sequence),
		"operation": String(s.Operation),
		"details":   details,
		"timestamp": String(s.Timestamp),
	}
}

type stagedAppend struct {
	category string
	action   string
	details  Value
}

// Tx is the handle passed to a unit of work. Writes and audit appends made
// through it are staged and only applied when the unit of work succeeds.
type Tx struct {
	id    string
	orch  *Orchestrator
	start time.Time

	mu      sync.Mutex
	status  TxStatus
	steps   []Step
	staged  map[string]Value
	appends []stagedAppend
	closed  bool
	// rejected is the first staging error. A transaction with one never
	// commits, even if the unit of work ignored the error.
	rejected error
}

func newTx(o *Orchestrator, id string, start time.Time) *Tx {
	return &Tx{
		id:     id,
		orch:   o,
		start:  start,
		status: StatusPending,
		staged: make(map[string]Value),
	}
}

// ID returns the transaction identifier.
func (t *Tx) ID() string { return t.id }

// Log records a step in the transaction trace.
func (t *Tx) Log(operation string, details Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTxClosed
	}
	t.appendStep(operation, details)
	return nil
}

// Write stages a value for key. It becomes durable only on commit.
// Keys the store would refuse are rejected here, before anything is applied.
func (t *Tx) Write(ctx context.Context, key string, v Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTxClosed
	}
	if kv, ok := t.orch.store.(KeyValidator); ok {
		if err := kv.ValidateKey(key); err != nil {
			return t.reject(fmt.Errorf("stage write %s: %w", key, err))
		}
	}
	t.staged[key] = v
	return nil
}

// Read returns the staged value of key if any, otherwise the stored one.
func (t *Tx) Read(ctx context.Context, key string) (Value, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTxClosed
	}
	if v, ok := t.staged[key]; ok {
		t.mu.Unlock()
		return v, nil
	}
	t.mu.Unlock()

	// Fallback to store
	return t.orch.store.Read(ctx, key)
}

// Append stages an audit entry. Staged entries are appended after every
// staged write has been applied.
func (t *Tx) Append(ctx context.Context, category, action string, details Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTxClosed
	}
	if action == "" {
		return t.reject(fmt.Errorf("stage append to %s: action is required", category))
	}
	if cv, ok := t.orch.log.(CategoryValidator); ok {
		if err := cv.ValidateCategory(category); err != nil {
			return t.reject(fmt.Errorf("stage append: %w", err))
		}
	}
	t.appends = append(t.appends, stagedAppend{category: category, action: action, details: details})
	return nil
}

// reject records err as the first staging error and returns it.
// Callers hold t.mu.
func (t *Tx) reject(err error) error {
	if t.rejected == nil {
		t.rejected = err
	}
	return err
}

// Validate runs ValidateConsistency, records a CONSISTENCY_CHECK step and
// returns the validation error, if any.
func (t *Tx) Validate(data Object, schema Schema) error {
	verr := ValidateConsistency(data, schema)

	details := Object{"fields": Int(len(schema)), "valid": Bool(verr == nil)}
	if ve, ok := verr.(*ValidationError); ok {
		violations := make(Array, len(ve.Violations))
		for i, v := range ve.Violations {
			violations[i] = String(v)
		}
		details["violations"] = violations
	}
	if err := t.Log(OpCheck, details); err != nil {
		return err
	}
	return verr
}

// Steps returns a copy of the trace recorded so far.
func (t *Tx) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Status returns the current transaction status.
func (t *Tx) Status() TxStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// record adds a step regardless of the closed flag. Used by the orchestrator.
func (t *Tx) record(operation string, details Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendStep(operation, details)
}

func (t *Tx) appendStep(operation string, details Value) {
	if details == nil {
		details = Object{}
	}
	t.steps = append(t.steps, Step{
		Sequence:  len(t.steps) + 1,
		Operation: operation,
		Details:   details,
		Timestamp: t.orch.clock().UTC().Format(TimestampLayout),
	})
}

// close stops the handle from accepting work and hands the staged state to
// the orchestrator, along with the first staging error, if any.
func (t *Tx) close() (map[string]Value, []stagedAppend, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	staged, appends := t.staged, t.appends
	t.staged, t.appends = nil, nil
	return staged, appends, t.rejected
}

func (t *Tx) setStatus(s TxStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}
