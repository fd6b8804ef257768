package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/ground/internal/ids"
)

// ErrLease is returned by FailingSource.
var ErrLease = errors.New("lease unavailable")

// FailingSource is an ids.Source whose leases always fail.
type FailingSource struct{}

// Lease implements ids.Source.
func (FailingSource) Lease(context.Context, string, int64) (int64, error) {
	return 0, ErrLease
}

// RecordingSource wraps an ids.Source and records every lease.
//
// Thread-safety: all methods are safe for concurrent use.
type RecordingSource struct {
	inner ids.Source

	mu     sync.Mutex
	leases []Lease
}

// Lease is one recorded lease.
type Lease struct {
	Space string
	First int64
	N     int64
}

// NewRecordingSource wraps inner.
func NewRecordingSource(inner ids.Source) *RecordingSource {
	return &RecordingSource{inner: inner}
}

// Lease implements ids.Source.
func (r *RecordingSource) Lease(ctx context.Context, space string, n int64) (int64, error) {
	first, err := r.inner.Lease(ctx, space, n)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.leases = append(r.leases, Lease{Space: space, First: first, N: n})
	r.mu.Unlock()
	return first, nil
}

// Leases returns the leases recorded so far.
func (r *RecordingSource) Leases() []Lease {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Lease, len(r.leases))
	copy(out, r.leases)
	return out
}
