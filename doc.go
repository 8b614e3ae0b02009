// Package syncache implements a process-local key-value cache with an
// authoritative in-memory snapshot, dot-path addressing, and dirty-tracked
// synchronization to one of several interchangeable persistent backends.
//
// Components:
//   - backend.Adapter: the persistence contract (file, redis/valkey,
//     sqlite, mongodb, bolt), selected by a registry tag.
//   - sync engine: owns the snapshot and a dirty flag; flushes to the
//     backend only when dirty (or forced), on a recurring timer, on
//     syncNow, or on SyncOnWrite.
//   - transaction coordinator: serializes compound read-modify-write
//     (Add/Subtract/Push) against granular backends under an exclusive
//     per-backend lock with begin/commit/rollback where the backend
//     supports it.
//
// The snapshot is the single source of truth while the cache is open;
// reads never touch the backend. Dirty means "mutated since the last
// successful flush" and is set unconditionally by every mutation, even
// value-preserving ones (simplicity over precision).
//
// Usage:
//
//	import (
//	    "github.com/unkn0wn-root/syncache"
//	    _ "github.com/unkn0wn-root/syncache/backend/file"
//	)
//
//	cc, _ := syncache.New(ctx, "orders", syncache.Options{
//	    Type:        "file",
//	    SavePath:    "orders.json",
//	    SyncOnClose: true,
//	})
//	defer cc.Close(ctx)
//
//	_ = cc.Set(ctx, "user.name", "Alice", false)
//	total, _ := cc.Add(ctx, "stats.orders", 1, false)
package syncache
