package syncache

import (
	"context"
	"time"

	be "github.com/unkn0wn-root/syncache/backend"
	c "github.com/unkn0wn-root/syncache/codec"
)

// Cache is a process-local key-value store addressed by dot-paths
// ("user.profile.age"). The in-memory snapshot is authoritative; it is
// flushed to the configured backend by the dirty-tracking sync scheduler.
//
// Read operations (Get, Retrieve, Has, Keys, Count) only touch the
// snapshot and never suspend. Mutating operations take a syncNow flag that
// forces an immediate flush after the mutation; otherwise flushing is left
// to the recurring timer, SyncOnWrite, or an explicit Sync call.
type Cache interface {
	// Get resolves a dot-path in the snapshot. ok is false when any
	// segment of the path does not resolve; a stored nil is returned as
	// (nil, true).
	Get(path string) (v any, ok bool)

	// Retrieve is an alias of Get, kept for callers that think of the
	// cache as an object store.
	Retrieve(path string) (v any, ok bool)

	// Has reports whether path resolves in the snapshot.
	Has(path string) bool

	// Keys returns the sorted top-level keys of the snapshot.
	Keys() []string

	// Count returns the number of top-level keys.
	Count() int

	// Set writes value at path, creating intermediate containers and
	// overwriting non-container prefixes (last write wins).
	Set(ctx context.Context, path string, value any, syncNow bool) error

	// Delete removes the leaf at path. Deleting an absent path is a
	// no-op and does not dirty the snapshot.
	Delete(ctx context.Context, path string, syncNow bool) error

	// Clear empties the snapshot.
	Clear(ctx context.Context, syncNow bool) error

	// Add adds n to the numeric value at path, treating a missing or
	// non-numeric current value as 0, and returns the new value. On a
	// granular backend the update runs through the transaction
	// coordinator (or the backend's native atomic counter) so concurrent
	// callers never lose updates.
	Add(ctx context.Context, path string, n float64, syncNow bool) (float64, error)

	// Subtract is Add with a negated n.
	Subtract(ctx context.Context, path string, n float64, syncNow bool) (float64, error)

	// Push appends element to the sequence at path, replacing any
	// non-sequence current value with a fresh one, and returns the
	// resulting sequence.
	Push(ctx context.Context, path string, element any, syncNow bool) ([]any, error)

	// Sync flushes the snapshot to the backend. Without a backend, or
	// when the snapshot is clean and force is false, it is a logged
	// no-op. On failure the dirty flag is retained and a *SyncError is
	// returned.
	//
	// Sync is not locked against concurrent compound updates on the same
	// backend: a whole-snapshot flush racing a granular Add can clobber
	// either side. Avoid mixing the two write paths concurrently.
	Sync(ctx context.Context, force bool) error

	// Close stops the sync timer, optionally performs a final forced
	// flush (SyncOnClose), and releases the backend handle. Idempotent.
	// Close is the shutdown hook: the owning application wires it into
	// its own signal handling; the cache never installs OS handlers.
	Close(ctx context.Context) error
}

// Options configure a cache. Only Name (the New argument) is required;
// everything else has a sensible default.
type Options struct {
	// Type selects the backend: "memory" (default, no persistence),
	// "file", "redis", "valkey", "sqlite", "mongodb", "bolt".
	// Non-memory backends must be linked in by importing their package
	// for side effects.
	Type string

	// Backend injects a pre-built adapter, bypassing the registry.
	// Takes precedence over Type.
	Backend be.Adapter

	SyncOnWrite  bool          // flush after every mutating call
	SyncOnClose  bool          // final forced flush in Close
	SyncInterval time.Duration // between timer flushes; 0 => 24h

	// Backend location parameters; which ones are read depends on Type.
	SavePath   string
	Host       string
	Port       int
	Database   string
	Collection string
	Username   string
	Password   string

	// Granular selects per-key storage on backends supporting both
	// layouts (redis).
	Granular bool

	// Codec serializes per-key values on granular backends; nil => JSON.
	Codec c.Codec[any]

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
	Debug  bool   // emit debug-level diagnostics
}

// New builds a cache named name, connects and loads its backend, and
// starts the sync timer. An unreachable backend is never fatal: the cache
// logs the condition and degrades to memory-only mode. Invalid
// configuration (empty name, unknown Type) does fail.
func New(ctx context.Context, name string, opts Options) (Cache, error) {
	return newCache(ctx, name, opts)
}
