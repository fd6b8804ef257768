package ids

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryInterval is how often a blocked Lease retries the file lock.
const lockRetryInterval = 10 * time.Millisecond

// FileSource persists counters in a JSON file. Every Lease holds an
// exclusive flock on a sibling .lock file for the read-modify-write, so
// several processes may share one counter file.
type FileSource struct {
	path string

	// mu serializes goroutines sharing this source; a flock handle is
	// reentrant within its own file description.
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileSource returns a source backed by path. The file is created on
// first lease.
func NewFileSource(path string) *FileSource {
	return &FileSource{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the counter file location.
func (f *FileSource) Path() string { return f.path }

// Lease implements Source.
func (f *FileSource) Lease(ctx context.Context, space string, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("lease size must be positive, got %d", n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	locked, err := f.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return 0, fmt.Errorf("lock %s: %w", f.lock.Path(), err)
	}
	if !locked {
		return 0, fmt.Errorf("lock %s: not acquired", f.lock.Path())
	}
	defer f.lock.Unlock()

	counters, err := f.read()
	if err != nil {
		return 0, err
	}
	first := counters[space]
	counters[space] = first + n
	if err := f.write(counters); err != nil {
		return 0, err
	}
	return first, nil
}

func (f *FileSource) read() (map[string]int64, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]int64), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}
	counters := make(map[string]int64)
	if len(data) == 0 {
		return counters, nil
	}
	if err := json.Unmarshal(data, &counters); err != nil {
		return nil, fmt.Errorf("decode counters %s: %w", f.path, err)
	}
	return counters, nil
}

// write replaces the counter file atomically.
func (f *FileSource) write(counters map[string]int64) error {
	data, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("encode counters: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write counters: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write counters: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync counters: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write counters: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace counters: %w", err)
	}
	return nil
}
