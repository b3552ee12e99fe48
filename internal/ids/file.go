package ids

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const lockRetry = 10 * time.Millisecond

// FileAllocator keeps the counter in a text file. An exclusive lock on a
// sibling ".lock" file serializes increments across processes; the monotonic
// guard serializes goroutines sharing one allocator, which the lock alone
// does not.
type FileAllocator struct {
	path string
	lock *flock.Flock
	mono monotonic
}

// NewFileAllocator creates the parent directory of path if needed.
func NewFileAllocator(path string) (*FileAllocator, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create counter dir: %w", err)
	}
	return &FileAllocator{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the counter file.
func (a *FileAllocator) Path() string { return a.path }

// Next implements Allocator.
func (a *FileAllocator) Next(ctx context.Context) (int64, error) {
	return a.mono.next(ctx, "ids.file "+a.path, a.increment)
}

func (a *FileAllocator) increment(ctx context.Context) (int64, error) {
	locked, err := a.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return 0, err
	}
	if !locked {
		return 0, errors.New("lock not acquired")
	}
	defer func() { _ = a.lock.Unlock() }()

	current, err := a.read()
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := a.write(next); err != nil {
		return 0, err
	}
	return next, nil
}

func (a *FileAllocator) read() (int64, error) {
	raw, err := os.ReadFile(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter: %w", err)
	}
	return n, nil
}

func (a *FileAllocator) write(n int64) error {
	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(n, 10)+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, a.path)
}
