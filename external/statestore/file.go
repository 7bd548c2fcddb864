package statestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/foxseedlab/azkar-bot/internal/state"
)

var errVerifyMismatch = errors.New("snapshot read back does not match what was written")

// FileBackend writes the snapshot as a JSON file next to a .backup copy of the
// previous version.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileBackend{path: path}, nil
}

func (b *FileBackend) backupPath() string {
	return b.path + ".backup"
}

func (b *FileBackend) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, state.ErrSnapshotNotFound
	}
	return data, err
}

func (b *FileBackend) Backup(_ context.Context) error {
	if err := copyFile(b.path, b.backupPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("back up snapshot: %w", err)
	}
	return nil
}

func (b *FileBackend) Write(_ context.Context, data []byte) error {
	if err := writeAtomic(b.path, data); err != nil {
		return err
	}

	stored, err := os.ReadFile(b.path)
	if err != nil {
		return fmt.Errorf("read back snapshot: %w", err)
	}
	if sha256.Sum256(stored) != sha256.Sum256(data) {
		return errVerifyMismatch
	}
	return nil
}

func (b *FileBackend) RestoreBackup(_ context.Context) error {
	data, err := os.ReadFile(b.backupPath())
	if err != nil {
		return fmt.Errorf("read snapshot backup: %w", err)
	}
	return writeAtomic(b.path, data)
}

func (b *FileBackend) Clear(_ context.Context) error {
	for _, p := range []string{b.path, b.backupPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (b *FileBackend) Close() error {
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return writeAtomic(dst, data)
}
