package core

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrReadOnly             = errors.New("keel is in read-only mode")
	ErrNotFound             = errors.New("resource not found")
	ErrCorrupt              = errors.New("resource is corrupt")
	ErrIoFailure            = errors.New("i/o failure")
	ErrVerificationMismatch = errors.New("write verification mismatch")
	ErrValidation           = errors.New("consistency validation failed")
	ErrInvalidKey           = errors.New("invalid resource key")
	ErrInvalidCategory      = errors.New("invalid log category")
	ErrTxClosed             = errors.New("transaction closed")
	ErrUnknownFormat        = errors.New("unknown export format")
)

// StoreErrorKind classifies store failures.
type StoreErrorKind string

const (
	NotFound             StoreErrorKind = "NotFound"
	Corrupt              StoreErrorKind = "Corrupt"
	IoFailure            StoreErrorKind = "IoFailure"
	VerificationMismatch StoreErrorKind = "VerificationMismatch"
)

// StoreError is returned by Store operations.
type StoreError struct {
	Kind StoreErrorKind
	Key  string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Key)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNotFound) and friends work on StoreError.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == NotFound
	case ErrCorrupt:
		return e.Kind == Corrupt
	case ErrIoFailure:
		return e.Kind == IoFailure
	case ErrVerificationMismatch:
		return e.Kind == VerificationMismatch
	}
	return false
}

// NewStoreError builds a StoreError.
func NewStoreError(kind StoreErrorKind, key string, err error) *StoreError {
	return &StoreError{Kind: kind, Key: key, Err: err}
}

// ValidationError aggregates every rule violated by a consistency check.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "consistency check failed: " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
