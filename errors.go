package syncache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("syncache: cache is closed")

	// ErrInvalidArgument marks inputs rejected before any backend
	// interaction (empty paths, non-finite increments). Test with
	// errors.Is.
	ErrInvalidArgument = errors.New("syncache: invalid argument")
)

// ConnectionError reports a backend that could not be reached or opened.
// At construction time it is logged and absorbed — the cache degrades to
// memory-only instead of failing; later operations surface it.
type ConnectionError struct {
	Backend string // backend type tag
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("syncache: connecting %s backend: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SyncError reports a failed flush. The dirty flag is retained so the next
// sync retries the write; the background timer logs and swallows it, an
// explicit Sync call propagates it.
type SyncError struct {
	Cache string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("syncache: syncing %q: %v", e.Cache, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// TxnError reports a compound atomic update that failed mid-flight.
// RolledBack tells whether the backend transaction was rolled back; when the
// backend offers no rollback the stored state may hold a partial write.
// The coordinator lock is released in every case.
type TxnError struct {
	Key        string
	Op         string // "add" or "push"
	RolledBack bool
	Err        error
}

func (e *TxnError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("syncache: %s %q failed (rolled back): %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("syncache: %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *TxnError) Unwrap() error { return e.Err }
