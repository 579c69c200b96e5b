package store

import (
	"fmt"
	"io"
	"os"
	"time"
)

const (
	// StateDBFile is the SQLite store VS Code-family editors keep per profile and workspace.
	StateDBFile = "state.vscdb"
	// StorageJSONFile is the flat JSON store in the global storage directory.
	StorageJSONFile = "storage.json"

	backupLayout = "20060102-150405"
)

// CheckUsable verifies the store file exists, is a regular file and holds at
// least minSize bytes. Anything else wraps ErrStoreUnavailable.
func CheckUsable(path string, minSize int64) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrStoreUnavailable)
		}
		return nil, fmt.Errorf("failed to check store %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, expected file: %w", path, ErrStoreUnavailable)
	}
	if info.Size() < minSize {
		return nil, fmt.Errorf("%s is %d bytes: %w", path, info.Size(), ErrStoreUnavailable)
	}
	return info, nil
}

// BackupPath returns the timestamped sibling path a backup of path taken at now would use.
func BackupPath(path string, now time.Time) string {
	return path + ".backup-" + now.Format(backupLayout)
}

// Backup copies path, and its SQLite -wal sidecar if present, to a timestamped
// sibling. It returns the backup path and the number of bytes copied. Backups
// are never removed by this package.
func Backup(path string, now time.Time) (string, int64, error) {
	dst := BackupPath(path, now)
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		dst = fmt.Sprintf("%s-%d", BackupPath(path, now), i)
	}

	n, err := copyFile(path, dst)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w: %v", path, ErrBackupFailed, err)
	}
	if _, err := os.Stat(path + "-wal"); err == nil {
		m, err := copyFile(path+"-wal", dst+"-wal")
		if err != nil {
			// a backup without its -wal is not a usable backup
			os.Remove(dst)
			return "", 0, fmt.Errorf("%s-wal: %w: %v", path, ErrBackupFailed, err)
		}
		n += m
	}
	return dst, n, nil
}

// copyFile copies src to a new file dst. On failure dst is removed, unless it
// already existed.
func copyFile(src, dst string) (n int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(dst)
		}
	}()

	if n, err = io.Copy(out, in); err != nil {
		return 0, err
	}
	if err = out.Sync(); err != nil {
		return 0, err
	}
	if err = out.Close(); err != nil {
		return 0, err
	}
	return n, nil
}
