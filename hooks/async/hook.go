// Package asynchook decouples hook consumers from the cache's hot paths.
//
// Wrap any syncache.Hooks in New and pass the wrapper to Options.Hooks:
// events are queued and delivered by background workers, so a slow
// consumer (metrics push, alert fan-out) never stalls a write or a sync.
// When the queue is full, events are dropped rather than blocking.
//
//	raw := myMetricsHooks{}
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/syncache"
)

type Hooks struct {
	inner syncache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ syncache.Hooks = (*Hooks)(nil)

func New(inner syncache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 256
	}
	h := &Hooks{
		inner: inner,
		q:     make(chan func(), qlen),
	}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events enqueued after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// enqueue never blocks; on overflow the event is dropped.
func (h *Hooks) enqueue(f func()) {
	defer func() { recover() }() // send on closed queue after Close
	select {
	case h.q <- f:
	default:
	}
}

func (h *Hooks) SyncSkipped(cache, reason string) {
	h.enqueue(func() { h.inner.SyncSkipped(cache, reason) })
}

func (h *Hooks) SyncFailed(cache string, err error) {
	h.enqueue(func() { h.inner.SyncFailed(cache, err) })
}

func (h *Hooks) BackendDegraded(cache, backendType string, err error) {
	h.enqueue(func() { h.inner.BackendDegraded(cache, backendType, err) })
}

func (h *Hooks) MalformedRecord(cache, key string, size int) {
	h.enqueue(func() { h.inner.MalformedRecord(cache, key, size) })
}

func (h *Hooks) TxnRolledBack(cache, key, op string, err error) {
	h.enqueue(func() { h.inner.TxnRolledBack(cache, key, op, err) })
}
