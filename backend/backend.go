// Package backend defines the persistence abstraction used by syncache.
//
// An Adapter owns exactly one connection/session handle, created lazily on
// Connect and released on Close. Implementations fall into two families:
//
//   - blob backends persist the entire snapshot as one document
//     (file, redis in blob mode);
//   - granular backends persist one physical record per top-level cache key
//     (sqlite, mongo, bolt, redis in granular mode) and additionally
//     implement Granular, and optionally Transactional and Adder.
//
// The keyspace scoped to the configured cache name (table, collection,
// bucket, "<name>:" prefix) is owned by the adapter. Foreign writes under it
// may surface as RawValue entries when they do not decode.
package backend

import (
	"context"
	"net"
	"strconv"

	"github.com/unkn0wn-root/syncache/codec"
)

// Adapter is the contract every persistence target must satisfy.
// Each operation is independently fallible. Adapters are not required to be
// safe for concurrent use; the cache serializes access to them.
type Adapter interface {
	// Connect establishes the handle. Idempotent; calling it when already
	// connected is a no-op.
	Connect(ctx context.Context) error

	// Save replaces the backend's entire persisted state with snapshot.
	Save(ctx context.Context, snapshot map[string]any) error

	// Fetch returns the full persisted state. It returns an empty non-nil
	// map when nothing is stored, never nil. Records that fail to decode
	// are surfaced as RawValue values rather than dropped.
	Fetch(ctx context.Context) (map[string]any, error)

	// Delete removes one top-level key; absent keys are a no-op, not an
	// error.
	Delete(ctx context.Context, key string) error

	// Has reports whether a top-level key is persisted.
	Has(ctx context.Context, key string) (bool, error)

	// Clear removes all persisted state for this cache's namespace.
	Clear(ctx context.Context) error

	// Close releases the handle. Idempotent.
	Close(ctx context.Context) error
}

// Granular is implemented by adapters that store one record per top-level
// key and can therefore read and write a single key without a full snapshot
// round trip.
type Granular interface {
	Adapter

	// GetKey returns the decoded value for one key. A record that fails to
	// decode is returned as a RawValue with ok=true and a nil error.
	GetKey(ctx context.Context, key string) (v any, ok bool, err error)

	// PutKey creates or overwrites the record for one key.
	PutKey(ctx context.Context, key string, value any) error
}

// Transactional is implemented by granular adapters with native
// begin/commit/rollback semantics. Adapters without it get best-effort
// compound updates: the coordinator lock still serializes callers, but a
// mid-flight failure may leave a partial write behind.
type Transactional interface {
	Begin(ctx context.Context) (Txn, error)
}

// Txn is a single native backend transaction. Exactly one of Commit or
// Rollback must be called; both are safe to call after the other has been
// (the second is a no-op or a harmless error).
type Txn interface {
	Get(ctx context.Context, key string) (v any, ok bool, err error)
	Put(ctx context.Context, key string, value any) error
	Commit() error
	Rollback() error
}

// Adder is implemented by adapters with a native atomic counter primitive
// (e.g. Redis INCRBYFLOAT). When available, the cache prefers it over a
// locked read-modify-write for top-level numeric keys.
type Adder interface {
	// AddKey atomically adds delta to the stored numeric value for key,
	// treating an absent record as 0, and returns the new value.
	AddKey(ctx context.Context, key string, delta float64) (float64, error)
}

// RawValue is an undecodable stored record, surfaced instead of discarded
// so callers can inspect or repair it.
type RawValue struct {
	Key   string
	Bytes []byte
	Err   error // the decode error
}

// Config carries backend location parameters. Only the fields relevant to
// the selected backend are read; the rest are ignored.
type Config struct {
	// Name is the cache name. It scopes the adapter's namespace: file path
	// stem, table name, collection name, bucket name, or key prefix.
	Name string

	SavePath   string // file, sqlite, bolt: filesystem location
	Host       string // redis, mongo
	Port       int    // redis, mongo
	Database   string // redis: numeric DB; mongo: database name
	Collection string // mongo
	Username   string
	Password   string

	// Granular selects per-key storage for backends that support both
	// layouts (redis). Granular-only backends ignore it.
	Granular bool

	// Codec serializes per-key values for granular storage. Nil means JSON.
	Codec codec.Codec[any]
}

// ValueCodec returns the configured per-value codec, defaulting to JSON.
func (c Config) ValueCodec() codec.Codec[any] {
	if c.Codec != nil {
		return c.Codec
	}
	return codec.JSON[any]{}
}

// Addr joins Host and Port, falling back to localhost and defPort for
// unset fields.
func (c Config) Addr(defPort int) string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = defPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
