package syncache

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	be "github.com/unkn0wn-root/syncache/backend"
)

// coordinator serializes compound read-modify-write sequences against one
// backend instance. The lock is coarse: it covers the whole backend, not
// individual keys, which imposes a total order on compound operations and
// rules out lost updates without any per-key bookkeeping.
//
// The lock is a weighted semaphore of size 1 rather than a sync.Mutex so
// acquisition honors context cancellation; release happens on every path.
type coordinator struct {
	cache string
	sem   *semaphore.Weighted
	log   Logger
	hooks Hooks
}

func newCoordinator(cache string, log Logger, hooks Hooks) *coordinator {
	return &coordinator{
		cache: cache,
		sem:   semaphore.NewWeighted(1),
		log:   log,
		hooks: hooks,
	}
}

// updateFn computes the next stored value for a key from the current one.
// ok is false when no record exists. It must be pure: no backend calls, no
// retries, so a rollback leaves nothing behind.
type updateFn func(cur any, ok bool) (next any, err error)

// update runs one exclusive read-modify-write of a top-level key.
// Protocol: acquire lock, ensure connected, begin a native transaction when
// the backend has one, read, apply fn, write, commit. Any failure rolls
// back (when possible) and propagates as a *TxnError; the stored value is
// left as it was before the attempt. Backends without native transactions
// get best-effort semantics: the lock still serializes callers, but a
// failure between read and write may leave a partial write.
func (co *coordinator) update(ctx context.Context, g be.Granular, key, op string, fn updateFn) (any, error) {
	if err := co.sem.Acquire(ctx, 1); err != nil {
		return nil, &TxnError{Key: key, Op: op, Err: err}
	}
	defer co.sem.Release(1)

	txid := uuid.NewString()[:8]
	co.log.Debug("txn acquired", Fields{"cache": co.cache, "txn": txid, "key": key, "op": op})

	if err := g.Connect(ctx); err != nil {
		return nil, &TxnError{Key: key, Op: op, Err: err}
	}

	if t, ok := g.(be.Transactional); ok {
		return co.updateNative(ctx, t, txid, key, op, fn)
	}

	// best-effort: no backend transaction to roll back
	cur, found, err := g.GetKey(ctx, key)
	if err != nil {
		return nil, &TxnError{Key: key, Op: op, Err: err}
	}
	next, err := fn(cur, found)
	if err != nil {
		return nil, &TxnError{Key: key, Op: op, Err: err}
	}
	if err := g.PutKey(ctx, key, next); err != nil {
		co.hooks.TxnRolledBack(co.cache, key, op, err)
		return nil, &TxnError{Key: key, Op: op, Err: err}
	}
	co.log.Debug("txn done (best-effort)", Fields{"cache": co.cache, "txn": txid, "key": key})
	return next, nil
}

func (co *coordinator) updateNative(ctx context.Context, t be.Transactional, txid, key, op string, fn updateFn) (any, error) {
	tx, err := t.Begin(ctx)
	if err != nil {
		return nil, &TxnError{Key: key, Op: op, Err: err}
	}

	rollback := func(cause error) (any, error) {
		if rerr := tx.Rollback(); rerr != nil {
			co.log.Error("txn rollback failed", Fields{
				"cache": co.cache, "txn": txid, "key": key, "err": rerr,
			})
		}
		co.hooks.TxnRolledBack(co.cache, key, op, cause)
		return nil, &TxnError{Key: key, Op: op, RolledBack: true, Err: cause}
	}

	cur, found, err := tx.Get(ctx, key)
	if err != nil {
		return rollback(err)
	}
	next, err := fn(cur, found)
	if err != nil {
		return rollback(err)
	}
	if err := tx.Put(ctx, key, next); err != nil {
		return rollback(err)
	}
	if err := tx.Commit(); err != nil {
		return rollback(err)
	}
	co.log.Debug("txn committed", Fields{"cache": co.cache, "txn": txid, "key": key})
	return next, nil
}
