package syncache

// Hooks are lightweight callbacks for high-signal cache events.
// Implementations MUST be cheap and non-blocking; the cache calls them
// inline on write and sync paths. Wrap with hooks/async to decouple slow
// consumers (metrics emission, alerting).
type Hooks interface {
	// A sync call did nothing.
	// reason ∈ {"no_backend", "clean"}
	SyncSkipped(cache, reason string)

	// A backend flush failed; the snapshot stays dirty.
	SyncFailed(cache string, err error)

	// The backend was unreachable at startup and the cache fell back to
	// memory-only mode.
	BackendDegraded(cache, backendType string, err error)

	// A persisted record (or whole document) did not decode. The raw
	// bytes are preserved on the surfaced value/error, not discarded.
	MalformedRecord(cache, key string, size int)

	// A compound atomic update failed and was rolled back (or could not
	// be, on backends without rollback).
	TxnRolledBack(cache, key, op string, err error)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) SyncSkipped(string, string)                {}
func (NopHooks) SyncFailed(string, error)                  {}
func (NopHooks) BackendDegraded(string, string, error)     {}
func (NopHooks) MalformedRecord(string, string, int)       {}
func (NopHooks) TxnRolledBack(string, string, string, error) {}
