package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// HashPayload returns the exact bytes that are digested for an entry:
// the canonical encoding of an object with the fields timestamp, action,
// details, previousHash and sequenceId, in that order. No other field of
// the entry participates.
func HashPayload(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"timestamp":`)
	writeCanonicalString(&buf, e.Timestamp)
	buf.WriteString(`,"action":`)
	writeCanonicalString(&buf, e.Action)
	buf.WriteString(`,"details":`)
	if err := writeCanonical(&buf, e.Details); err != nil {
		return nil, fmt.Errorf("details: %w", err)
	}
	buf.WriteString(`,"previousHash":`)
	writeCanonicalString(&buf, e.PreviousHash)
	buf.WriteString(`,"sequenceId":`)
	buf.WriteString(strconv.FormatInt(e.SequenceID, 10))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// HashEntry computes the SHA-256 hex digest of an entry. The Hash field of
// e is ignored, so HashEntry(e) == e.Hash holds for untampered entries.
func HashEntry(e Entry) (string, error) {
	payload, err := HashPayload(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Seal computes and sets e.Hash.
func Seal(e Entry) (Entry, error) {
	h, err := HashEntry(e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = h
	return e, nil
}
