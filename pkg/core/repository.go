package core

import (
	"context"
	"io"
	"time"
)

// Store defines the contract for durable, all-or-nothing resource storage.
// Adhering to this interface allows the orchestrator to be independent of
// the underlying storage mechanism.
type Store interface {
	// Write replaces the value of key. Readers observe either the previous
	// value or the new one, never a partial write.
	Write(ctx context.Context, key string, v Value) error

	// Read returns the current value of key.
	// Missing keys yield ErrNotFound, unparsable content yields ErrCorrupt.
	Read(ctx context.Context, key string) (Value, error)
}

// Snapshotter is implemented by stores that can capture and put back the raw
// bytes of a resource. The orchestrator uses it to compensate a commit that
// fails halfway through.
type Snapshotter interface {
	// Snapshot returns the raw bytes of key, and whether it exists.
	Snapshot(ctx context.Context, key string) ([]byte, bool, error)

	// Swap writes v like Store.Write and returns the bytes key held just
	// before, and whether it existed. No other write to key can land
	// between the capture and the write.
	Swap(ctx context.Context, key string, v Value) ([]byte, bool, error)

	// Restore writes back bytes captured by Snapshot, or removes key when
	// existed is false.
	Restore(ctx context.Context, key string, data []byte, existed bool) error
}

// KeyValidator is implemented by stores that restrict resource keys.
type KeyValidator interface {
	ValidateKey(key string) error
}

// CategoryValidator is implemented by logs that restrict category names.
type CategoryValidator interface {
	ValidateCategory(category string) error
}

// ExportFormat selects the rendering used by AuditLog.Export.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// AuditLog defines the contract for the hash-chained, append-only log.
type AuditLog interface {
	// Append adds an entry to category, chained to the category's last entry.
	Append(ctx context.Context, category, action string, details Value) (Entry, error)

	// Verify replays category from GENESIS and reports every anomaly found.
	Verify(ctx context.Context, category string) (VerifyResult, error)

	// Read returns the most recent limit entries in stored order.
	// A limit <= 0 returns every entry.
	Read(ctx context.Context, category string, limit int) ([]Entry, error)

	// Export renders the whole category in the given format.
	Export(ctx context.Context, category string, format ExportFormat) ([]byte, error)
}

// ArchiveSink receives archived copies of log categories.
type ArchiveSink interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
}

// Clock returns the current time. Injected so that tests can freeze it.
type Clock func() time.Time

// Observer receives notifications about completed operations. All methods
// must be safe for concurrent use.
type Observer interface {
	ObserveWrite(key string, err error, d time.Duration)
	ObserveAppend(category string, err error)
	ObserveVerify(category string, result VerifyResult)
	ObserveTransaction(status TxStatus, d time.Duration)
}

// NopObserver discards every notification.
type NopObserver struct{}

func (NopObserver) ObserveWrite(string, error, time.Duration) {}
func (NopObserver) ObserveAppend(string, error) {}
func (NopObserver) ObserveVerify(string, VerifyResult) {}
func (NopObserver) ObserveTransaction(TxStatus, time.Duration) {}

// IntegrityEvent reports a verification performed outside of an explicit
// Verify call, e.g. by the tamper watcher.
type IntegrityEvent struct {
	Category  string
	Result    VerifyResult
	Timestamp int64 // Unix timestamp
}

func (e IntegrityEvent) String() string {
	status := "valid"
	if !e.Result.Valid {
		status = "INVALID"
	}
	return e.Category + ": " + status
}
