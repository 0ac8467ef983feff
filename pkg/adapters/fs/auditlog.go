package fs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/keel/pkg/core"
)

// LogExt is the extension of category files.
const LogExt = ".log"

var categoryPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// AuditLog implements core.AuditLog with one append-only, line-delimited
// JSON file per category.
type AuditLog struct {
	Path   string
	config Config
	locks  *keyedMutex
	index  *logIndex

	mu            sync.RWMutex
	watcherActive bool
	lastCheck     *time.Time
}

// NewAuditLog creates a new filesystem-backed audit log.
func NewAuditLog(config Config) *AuditLog {
	config = config.withDefaults()
	dir := config.LogDir()
	return &AuditLog{
		Path:   dir,
		config: config,
		locks:  newKeyedMutex(),
		index:  newLogIndex(dir, config.Logger, config.FileMode),
	}
}

// Initialize ensures the log directory exists.
func (l *AuditLog) Initialize(ctx context.Context) error {
	return initDir(l.Path, l.config)
}

// ValidateCategory reports whether name can be used as a category.
func ValidateCategory(name string) error {
	if !categoryPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", core.ErrInvalidCategory, name)
	}
	return nil
}

// ValidateCategory implements core.CategoryValidator.
func (l *AuditLog) ValidateCategory(category string) error {
	return ValidateCategory(category)
}

func (l *AuditLog) categoryPath(category string) string {
	return filepath.Join(l.Path, category+LogExt)
}

func (l *AuditLog) exists(category string) bool {
	_, err := os.Stat(l.categoryPath(category))
	return err == nil
}

// Append adds an entry to category.
//
// Workflow:
//  1. Under the category lock, read the tail of the file to find the
//     previous hash and the next sequence ID.
//  2. Build and seal the entry.
//  3. Append it as one line with a single write.
//  4. Recompute and persist the category summary in index.json.
func (l *AuditLog) Append(ctx context.Context, category, action string, details core.Value) (core.Entry, error) {
	entry, err := l.append(ctx, category, action, details)
	l.config.Observer.ObserveAppend(category, err)
	return entry, err
}

func (l *AuditLog) append(ctx context.Context, category, action string, details core.Value) (core.Entry, error) {
	if l.config.ReadOnly {
		return core.Entry{}, core.ErrReadOnly
	}
	if err := ValidateCategory(category); err != nil {
		return core.Entry{}, err
	}
	if action == "" {
		return core.Entry{}, fmt.Errorf("action is required")
	}
	if err := ctx.Err(); err != nil {
		return core.Entry{}, err
	}

	unlock := l.locks.Lock(category)
	defer unlock()

	if err := os.MkdirAll(l.Path, 0755); err != nil {
		return core.Entry{}, fmt.Errorf("%w: failed to create log directory: %v", core.ErrIoFailure, err)
	}

	path := l.categoryPath(category)
	prevHash, seq, err := l.tip(path)
	if err != nil {
		return core.Entry{}, err
	}
	torn, err := missingNewline(path)
	if err != nil {
		return core.Entry{}, fmt.Errorf("%w: %v", core.ErrIoFailure, err)
	}

	entry, err := core.Seal(core.NewEntry(seq, l.config.Clock(), action, details, prevHash))
	if err != nil {
		return core.Entry{}, fmt.Errorf("failed to hash entry: %w", err)
	}

	line, err := encodeEntry(entry)
	if err != nil {
		return core.Entry{}, fmt.Errorf("failed to encode entry: %w", err)
	}
	if torn {
		// Close the torn line in the same write so the entry starts on its own.
		l.config.Logger.Warn("log does not end with a newline, closing torn line", "path", path)
		line = append([]byte{'\n'}, line...)
	}

	if err := appendLine(path, line, l.config.FileMode); err != nil {
		return core.Entry{}, fmt.Errorf("%w: %v", core.ErrIoFailure, err)
	}

	if err := l.updateIndex(category, path, entry); err != nil {
		// The entry is durable; a stale index is rebuilt on the next append.
		l.config.Logger.Warn("failed to update log index", "category", category, "error", err)
	}

	l.config.Logger.Debug("entry appended", "category", category, "action", action, "sequence", entry.SequenceID)
	return entry, nil
}

// encodeEntry renders an entry as one JSON line.
func encodeEntry(e core.Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// appendLine writes line to the end of path with a single write call.
func appendLine(path string, line []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return f.Close()
}

// tip returns the hash to chain from and the next sequence ID.
// When the last line cannot be parsed, the hash comes from the last
// parseable line and the sequence falls back to
// max(highest parsed sequence, lineCount)+1, so it always moves forward.
func (l *AuditLog) tip(path string) (string, int64, error) {
	last, err := readLastLine(path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.GenesisHash, 1, nil
		}
		return "", 0, fmt.Errorf("%w: %v", core.ErrIoFailure, err)
	}
	if len(last) == 0 {
		return core.GenesisHash, 1, nil
	}

	var e core.Entry
	if err := json.Unmarshal(last, &e); err == nil && e.Hash != "" {
		return e.Hash, e.SequenceID + 1, nil
	}

	l.config.Logger.Warn("last log line is unparsable, falling back to line count", "path", path)

	prevHash := core.GenesisHash
	var lines, maxSeq int64
	err = scanLines(path, func(_ int, raw []byte) {
		lines++
		var pe core.Entry
		if json.Unmarshal(raw, &pe) == nil && pe.Hash != "" {
			prevHash = pe.Hash
			maxSeq = max(maxSeq, pe.SequenceID)
		}
	})
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", core.ErrIoFailure, err)
	}
	return prevHash, max(maxSeq, lines) + 1, nil
}

// missingNewline reports whether path is non-empty and its last byte is not
// a newline, which is what an interrupted append leaves behind.
func missingNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// updateIndex recomputes the summary of category after appending e.
// The previous summary is reused when it is consistent with e, otherwise
// the file is rescanned.
func (l *AuditLog) updateIndex(category, path string, e core.Entry) error {
	prev, ok, err := l.index.Get(category)
	if err != nil {
		return err
	}

	ci := core.CategoryIndex{
		EntryCount:          prev.EntryCount + 1,
		FirstEntryTimestamp: prev.FirstEntryTimestamp,
		LastEntryTimestamp:  e.Timestamp,
		LastUpdated:         l.config.Clock().UTC(),
	}

	if !ok || prev.EntryCount != e.SequenceID-1 || (prev.EntryCount == 0 && ci.FirstEntryTimestamp == "") {
		ci.EntryCount = 0
		ci.FirstEntryTimestamp = ""
		err := scanLines(path, func(_ int, raw []byte) {
			var se core.Entry
			if json.Unmarshal(raw, &se) != nil {
				return
			}
			if ci.EntryCount == 0 {
				ci.FirstEntryTimestamp = se.Timestamp
			}
			ci.EntryCount++
		})
		if err != nil {
			return err
		}
	}

	return l.index.Set(category, ci)
}

// Verify replays category from GENESIS. Every anomaly is recorded and the
// scan continues to the end of the file, so a single call reports all of
// them. Appends to the category wait until the replay finishes.
func (l *AuditLog) Verify(ctx context.Context, category string) (core.VerifyResult, error) {
	if err := ValidateCategory(category); err != nil {
		return core.VerifyResult{}, err
	}
	unlock := l.locks.Lock(category)
	res, err := l.verify(ctx, category)
	unlock()
	if err == nil {
		l.config.Observer.ObserveVerify(category, res)
	}
	return res, err
}

// verify replays a category already validated by the caller, which also
// holds the category lock.
func (l *AuditLog) verify(ctx context.Context, category string) (core.VerifyResult, error) {
	res := core.VerifyResult{Category: category, Errors: []core.ChainError{}}
	prevHash := core.GenesisHash
	var prevSeq int64

	err := scanLines(l.categoryPath(category), func(line int, raw []byte) {
		var e core.Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			res.Errors = append(res.Errors, core.ChainError{
				Kind:    core.MalformedLine,
				Line:    line,
				Message: fmt.Sprintf("unparsable entry: %v", err),
			})
			return
		}
		res.EntriesChecked++

		if e.PreviousHash != prevHash {
			res.Errors = append(res.Errors, core.ChainError{
				Kind:       core.ChainBreak,
				SequenceID: e.SequenceID,
				Line:       line,
				Message:    fmt.Sprintf("previousHash %s does not match preceding hash %s", e.PreviousHash, prevHash),
			})
		}

		if e.SequenceID != prevSeq+1 {
			res.Errors = append(res.Errors, core.ChainError{
				Kind:       core.SequenceGap,
				SequenceID: e.SequenceID,
				Line:       line,
				Message:    fmt.Sprintf("expected sequenceId %d, got %d", prevSeq+1, e.SequenceID),
			})
		}

		recomputed, err := core.HashEntry(e)
		if err != nil || recomputed != e.Hash {
			msg := fmt.Sprintf("stored hash %s does not match recomputed %s", e.Hash, recomputed)
			if err != nil {
				msg = fmt.Sprintf("hash cannot be recomputed: %v", err)
			}
			res.Errors = append(res.Errors, core.ChainError{
				Kind:       core.TamperDetected,
				SequenceID: e.SequenceID,
				Line:       line,
				Message:    msg,
			})
		}

		prevHash = e.Hash
		prevSeq = e.SequenceID
	})
	if err != nil && !os.IsNotExist(err) {
		return core.VerifyResult{}, fmt.Errorf("%w: %v", core.ErrIoFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return core.VerifyResult{}, err
	}

	res.Valid = len(res.Errors) == 0
	return res, nil
}

// Read returns the last limit parseable entries of category, in stored
// order. Malformed lines are skipped. limit <= 0 returns everything.
func (l *AuditLog) Read(ctx context.Context, category string, limit int) ([]core.Entry, error) {
	if err := ValidateCategory(category); err != nil {
		return nil, err
	}

	entries := []core.Entry{}
	err := scanLines(l.categoryPath(category), func(_ int, raw []byte) {
		var e core.Entry
		if json.Unmarshal(raw, &e) != nil {
			return
		}
		entries = append(entries, e)
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %v", core.ErrIoFailure, err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Categories lists the categories present on disk, sorted.
func (l *AuditLog) Categories(ctx context.Context) ([]string, error) {
	return l.Match(ctx, "*")
}

// Match lists the categories whose name matches a doublestar pattern.
func (l *AuditLog) Match(ctx context.Context, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(l.Path), "*"+LogExt)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(m, LogExt)
		if ValidateCategory(name) != nil {
			continue
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Index returns the current category summaries.
func (l *AuditLog) Index(ctx context.Context) (core.LogIndex, error) {
	return l.index.Snapshot()
}

// scanLines calls fn with every non-blank line of path (1-based line numbers).
func scanLines(path string, fn func(line int, raw []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	line := 0
	for {
		raw, err := r.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
				fn(line, trimmed)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// readLastLine returns the last non-blank line of path, reading backwards
// from the end so that appends stay cheap on long logs.
func readLastLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	const chunk = 4096
	var tail []byte
	offset := info.Size()
	for offset > 0 {
		n := int64(chunk)
		if offset < n {
			n = offset
		}
		offset -= n

		buf := make([]byte, n)
		if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
			return nil, err
		}
		tail = append(buf, tail...)

		trimmed := bytes.TrimRight(tail, " \t\r\n")
		if i := bytes.LastIndexByte(trimmed, '\n'); i >= 0 {
			return bytes.TrimSpace(trimmed[i+1:]), nil
		}
	}
	return bytes.TrimSpace(tail), nil
}

func (l *AuditLog) now() time.Time { return l.config.Clock() }

var _ core.AuditLog = (*AuditLog)(nil)
var _ core.CategoryValidator = (*AuditLog)(nil)
