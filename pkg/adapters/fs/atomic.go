package fs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aretw0/keel/pkg/core"
)

const (
	// TempFilePrefix is the prefix used for temporary atomic write files.
	TempFilePrefix = "keel-tmp-"

	// BackupSuffix is appended to a resource file name to form its backup slot.
	BackupSuffix = ".bak"
)

// errBackupNotRotated is returned when filename was replaced but the
// previous content could not be moved into the backup slot.
var errBackupNotRotated = errors.New("backup not rotated")

// renameFile is os.Rename; tests swap it to simulate a failing rename.
var renameFile = os.Rename

// writeFileAtomic writes data to a file atomically by writing to a temp file
// and then renaming it to the target filename.
//
// Before the rename, the temp file is read back and compared with data; a
// difference fails with core.ErrVerificationMismatch. If backup is not empty
// and filename already exists, the current content is staged beside backup
// and moved into the slot only once the rename succeeded, so a failed write
// keeps the earlier backup. The rename is the only step visible to readers,
// so filename always holds either the old or the new content.
//
// An error wrapping errBackupNotRotated means filename holds the new
// content and only the backup slot is stale.
func writeFileAtomic(filename string, data []byte, perm os.FileMode, backup string) error {
	dir := filepath.Dir(filename)

	// Create a temporary file in the same directory to ensure atomic rename
	tmpFile, err := os.CreateTemp(dir, TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName) // Clean up if we fail before rename

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := verifyFile(tmpName, data); err != nil {
		return err
	}

	var staged string
	if backup != "" {
		staged, err = stageBackup(filename, backup, perm)
		if err != nil {
			return fmt.Errorf("failed to stage backup: %w", err)
		}
	}

	if err := renameFile(tmpName, filename); err != nil {
		if staged != "" {
			_ = os.Remove(staged)
		}
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}

	if staged != "" {
		if err := renameFile(staged, backup); err != nil {
			_ = os.Remove(staged)
			return fmt.Errorf("%w: %v", errBackupNotRotated, err)
		}
	}

	return nil
}

// verifyFile reads path back and compares it with want.
func verifyFile(path string, want []byte) error {
	got, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read back temp file: %w", err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: wrote %d bytes, read back %d", core.ErrVerificationMismatch, len(want), len(got))
	}
	return nil
}

// stageBackup captures the current content of filename in a file next to
// backup and returns its path. A missing filename yields "": there is
// nothing to back up yet. The staged file is later renamed over backup, so
// the slot is never half written.
func stageBackup(filename, backup string, perm os.FileMode) (string, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	tmp := backup + "." + TempFilePrefix + "link"
	_ = os.Remove(tmp)

	// Hard link is cheap and exact; fall back to a copy where links are not
	// supported.
	if err := os.Link(filename, tmp); err != nil {
		if err := copyFile(filename, tmp, perm); err != nil {
			_ = os.Remove(tmp)
			return "", err
		}
	}
	return tmp, nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
