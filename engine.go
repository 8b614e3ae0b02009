package syncache

import (
	"context"
	"errors"

	be "github.com/unkn0wn-root/syncache/backend"
)

// Cache lifecycle. There is no transition out of stateClosed.
const (
	stateUninitialized = iota
	stateReady
	stateClosed
)

// initialize connects the backend and adopts its persisted state as the
// snapshot. An unreachable backend degrades the cache to memory-only mode;
// only context cancellation aborts construction.
func (c *cache) initialize(ctx context.Context) error {
	if c.be == nil {
		c.state = stateReady
		return nil
	}

	if err := c.be.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		cerr := &ConnectionError{Backend: c.beType, Err: err}
		c.log.Warn("backend unreachable; falling back to memory-only mode",
			Fields{"cache": c.name, "backend": c.beType, "err": err})
		c.hooks.BackendDegraded(c.name, c.beType, cerr)
		_ = c.be.Close(ctx)
		c.be = nil
		c.gran = nil
		c.beType = "memory"
		c.state = stateReady
		return nil
	}

	doc, err := c.be.Fetch(ctx)
	if err != nil {
		var mal *be.MalformedError
		if errors.As(err, &mal) {
			// document preserved inside the error; start empty and clean,
			// the next flush will overwrite only after a mutation
			c.log.Error("persisted document is malformed; starting empty",
				Fields{"cache": c.name, "size": len(mal.Raw), "err": mal.Err})
			c.hooks.MalformedRecord(c.name, mal.Key, len(mal.Raw))
			doc = map[string]any{}
		} else {
			if ctx.Err() != nil {
				return err
			}
			cerr := &ConnectionError{Backend: c.beType, Err: err}
			c.log.Warn("backend load failed; falling back to memory-only mode",
				Fields{"cache": c.name, "backend": c.beType, "err": err})
			c.hooks.BackendDegraded(c.name, c.beType, cerr)
			_ = c.be.Close(ctx)
			c.be = nil
			c.gran = nil
			c.beType = "memory"
			c.state = stateReady
			return nil
		}
	}

	if len(doc) > 0 {
		for key, v := range doc {
			if raw, ok := v.(be.RawValue); ok {
				c.log.Warn("stored record did not decode; raw value surfaced",
					Fields{"cache": c.name, "key": key, "size": len(raw.Bytes), "err": raw.Err})
				c.hooks.MalformedRecord(c.name, key, len(raw.Bytes))
			}
		}
		c.snapshot = doc
	}
	// an empty backend is not "dirty" relative to an empty cache
	c.dirty = false
	c.state = stateReady
	return nil
}

func (c *cache) Sync(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return ErrClosed
	}
	return c.syncLocked(ctx, force)
}

// maybeSync flushes after a mutation when the caller asked for it or the
// cache is configured sync-on-write. Callers hold the write lock.
func (c *cache) maybeSync(ctx context.Context, syncNow bool) error {
	if syncNow || c.syncOnWrite {
		return c.syncLocked(ctx, false)
	}
	return nil
}

// syncLocked flushes the snapshot to the backend. Callers hold the write
// lock. Dirty is cleared only after a successful save; a failed save must
// never silently clear it.
func (c *cache) syncLocked(ctx context.Context, force bool) error {
	if c.be == nil {
		c.debugLog("sync skipped: no backend attached", Fields{"cache": c.name})
		c.hooks.SyncSkipped(c.name, "no_backend")
		return nil
	}
	if !c.dirty && !force {
		c.debugLog("sync skipped: snapshot clean", Fields{"cache": c.name})
		c.hooks.SyncSkipped(c.name, "clean")
		return nil
	}
	if err := c.be.Connect(ctx); err != nil {
		serr := &SyncError{Cache: c.name, Err: err}
		c.hooks.SyncFailed(c.name, serr)
		return serr
	}
	if err := c.be.Save(ctx, c.snapshot); err != nil {
		serr := &SyncError{Cache: c.name, Err: err}
		c.hooks.SyncFailed(c.name, serr)
		return serr
	}
	c.dirty = false
	c.debugLog("sync flushed", Fields{"cache": c.name, "keys": len(c.snapshot)})
	return nil
}

// syncLoop drives the recurring background flush. Failures are logged and
// swallowed; nothing may escape the timer goroutine.
func (c *cache) syncLoop() {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.ticker.C:
			if err := c.Sync(context.Background(), false); err != nil {
				c.log.Warn("background sync failed; snapshot stays dirty",
					Fields{"cache": c.name, "err": err})
			}
		case <-c.stopCh:
			return
		}
	}
}

// Close stops the timer, optionally performs a final forced flush, marks
// the cache closed and releases the backend. Subsequent calls do nothing.
func (c *cache) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
			c.closeWg.Wait()
			c.ticker.Stop()
		}

		c.mu.Lock()
		if c.syncOnClose && c.be != nil {
			if serr := c.syncLocked(ctx, true); serr != nil {
				c.log.Error("final sync on close failed",
					Fields{"cache": c.name, "err": serr})
				err = serr
			}
		}
		c.state = stateClosed
		adapter := c.be
		c.mu.Unlock()

		if adapter != nil {
			if cerr := adapter.Close(ctx); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

func (c *cache) debugLog(msg string, f Fields) {
	if c.debug {
		c.log.Debug(msg, f)
	}
}
