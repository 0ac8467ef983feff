package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// GenesisHash is the previousHash of the first entry of every category.
const GenesisHash = "GENESIS"

// TimestampLayout is the layout of Entry.Timestamp: UTC, millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Entry is a single immutable record in a category's hash chain.
type Entry struct {
	SequenceID   int64  `json:"sequenceId"`
	Timestamp    string `json:"timestamp"`
	ISODate      string `json:"isoDate"`
	UnixTime     int64  `json:"unixTime"`
	Action       string `json:"action"`
	Details      Value  `json:"details"`
	PreviousHash string `json:"previousHash"`
	Hash         string `json:"hash"`
}

// NewEntry builds an unhashed entry stamped with t.
func NewEntry(seq int64, t time.Time, action string, details Value, previousHash string) Entry {
	t = t.UTC()
	if details == nil {
		details = Object{}
	}
	return Entry{
		SequenceID:   seq,
		Timestamp:    t.Format(TimestampLayout),
		ISODate:      t.Format(time.DateOnly),
		UnixTime:     t.UnixMilli(),
		Action:       action,
		Details:      details,
		PreviousHash: previousHash,
	}
}

// UnmarshalJSON decodes an entry, parsing details into the Value union.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var aux struct {
		plain
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = Entry(aux.plain)
	if len(aux.Details) == 0 {
		e.Details = Null{}
		return nil
	}
	details, err := ParseValue(aux.Details)
	if err != nil {
		return fmt.Errorf("details: %w", err)
	}
	e.Details = details
	return nil
}

// Time returns the entry timestamp.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.UnixTime).UTC()
}

// CategoryIndex summarises a category. It is derived data, recomputed after
// every append.
type CategoryIndex struct {
	EntryCount          int64     `json:"entryCount"`
	FirstEntryTimestamp string    `json:"firstEntryTimestamp,omitempty"`
	LastEntryTimestamp  string    `json:"lastEntryTimestamp,omitempty"`
	LastUpdated         time.Time `json:"lastUpdated"`
}

// LogIndex maps category name to its summary.
type LogIndex map[string]CategoryIndex

// ChainErrorKind classifies a verification finding.
type ChainErrorKind string

const (
	// ChainBreak means previousHash does not match the preceding entry's hash.
	ChainBreak ChainErrorKind = "chain_break"
	// TamperDetected means the stored hash does not match the recomputed one.
	TamperDetected ChainErrorKind = "tamper"
	// SequenceGap means sequenceId did not increase by exactly one.
	SequenceGap ChainErrorKind = "sequence_gap"
	// MalformedLine means a line could not be parsed as an entry.
	MalformedLine ChainErrorKind = "malformed"
)

// ChainError is one anomaly found by Verify.
type ChainError struct {
	Kind       ChainErrorKind `json:"kind"`
	SequenceID int64          `json:"sequenceId,omitempty"`
	Line       int            `json:"line"`
	Message    string         `json:"message"`
}

func (e ChainError) String() string {
	if e.Kind == MalformedLine {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("sequence %d: %s", e.SequenceID, e.Message)
}

// VerifyResult is the outcome of replaying a category.
type VerifyResult struct {
	Category       string       `json:"category"`
	Valid          bool         `json:"valid"`
	EntriesChecked int          `json:"entriesChecked"`
	Errors         []ChainError `json:"errors"`
}
