// Package sqlite persists the cache in a SQLite database via
// modernc.org/sqlite (pure Go, no CGO).
//
// Layout: one table per cache named after it, columns key (TEXT PRIMARY
// KEY), value (serialized TEXT), updatedAt (TIMESTAMP) — one row per
// top-level cache key. WAL mode is enabled for concurrent read performance.
//
// The adapter is fully granular and transactional: compound updates run
// inside a real BEGIN/COMMIT/ROLLBACK.
//
// Import for side effects to register the "sqlite" backend:
//
//	import _ "github.com/unkn0wn-root/syncache/backend/sqlite"
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/syncache/backend"
	"github.com/unkn0wn-root/syncache/codec"
)

func init() {
	backend.Register("sqlite", func(cfg backend.Config) (backend.Adapter, error) {
		return New(cfg)
	})
}

type Adapter struct {
	path  string
	table string
	codec codec.Codec[any]
	db    *sql.DB
}

var (
	_ backend.Adapter       = (*Adapter)(nil)
	_ backend.Granular      = (*Adapter)(nil)
	_ backend.Transactional = (*Adapter)(nil)
)

func New(cfg backend.Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("sqlite backend: cache name is required")
	}
	if !validIdent(cfg.Name) {
		return nil, fmt.Errorf("sqlite backend: cache name %q is not a valid table name", cfg.Name)
	}
	path := cfg.SavePath
	if path == "" {
		path = cfg.Name + ".db"
	}
	return &Adapter{path: path, table: cfg.Name, codec: cfg.ValueCodec()}, nil
}

// validIdent restricts table names to [A-Za-z0-9_] with a non-digit head,
// since the cache name is interpolated into DDL/DML.
func validIdent(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return s != ""
}

func (a *Adapter) Connect(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	dsn := a.path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("sqlite backend: opening %s: %w", a.path, err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updatedAt TIMESTAMP NOT NULL
	)`, a.table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return fmt.Errorf("sqlite backend: creating table %s: %w", a.table, err)
	}
	a.db = db
	return nil
}

func (a *Adapter) Save(ctx context.Context, snapshot map[string]any) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, a.table)); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %q (key, value, updatedAt) VALUES (?, ?, ?)`, a.table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for key, v := range snapshot {
		data, err := a.codec.Encode(v)
		if err != nil {
			return fmt.Errorf("sqlite backend: encoding %q: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, key, string(data), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (a *Adapter) Fetch(ctx context.Context) (map[string]any, error) {
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`SELECT key, value FROM %q`, a.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		dec, derr := a.codec.Decode(raw)
		if derr != nil {
			out[key] = backend.RawValue{Key: key, Bytes: raw, Err: derr}
			continue
		}
		out[key] = dec
	}
	return out, rows.Err()
}

func (a *Adapter) GetKey(ctx context.Context, key string) (any, bool, error) {
	return getKey(ctx, a.db, a.table, a.codec, key)
}

func (a *Adapter) PutKey(ctx context.Context, key string, value any) error {
	return putKey(ctx, a.db, a.table, a.codec, key, value)
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	_, err := a.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE key = ?`, a.table), key)
	return err
}

func (a *Adapter) Has(ctx context.Context, key string) (bool, error) {
	var one int
	err := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %q WHERE key = ?`, a.table), key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (a *Adapter) Clear(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, a.table))
	return err
}

func (a *Adapter) Close(context.Context) error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// Begin starts a native transaction for compound read-modify-write.
func (a *Adapter) Begin(ctx context.Context) (backend.Txn, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txn{tx: tx, table: a.table, codec: a.codec}, nil
}

type txn struct {
	tx    *sql.Tx
	table string
	codec codec.Codec[any]
}

func (t *txn) Get(ctx context.Context, key string) (any, bool, error) {
	return getKey(ctx, t.tx, t.table, t.codec, key)
}

func (t *txn) Put(ctx context.Context, key string, value any) error {
	return putKey(ctx, t.tx, t.table, t.codec, key, value)
}

func (t *txn) Commit() error   { return t.tx.Commit() }
func (t *txn) Rollback() error { return t.tx.Rollback() }

// querier is satisfied by both *sql.DB and *sql.Tx so the single-key
// helpers serve the adapter and its transactions alike.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getKey(ctx context.Context, q querier, table string, c codec.Codec[any], key string) (any, bool, error) {
	var raw []byte
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %q WHERE key = ?`, table), key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	dec, derr := c.Decode(raw)
	if derr != nil {
		return backend.RawValue{Key: key, Bytes: raw, Err: derr}, true, nil
	}
	return dec, true, nil
}

func putKey(ctx context.Context, q querier, table string, c codec.Codec[any], key string, value any) error {
	data, err := c.Encode(value)
	if err != nil {
		return fmt.Errorf("sqlite backend: encoding %q: %w", key, err)
	}
	_, err = q.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %q (key, value, updatedAt) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = excluded.updatedAt`,
		table), key, string(data), time.Now().UTC())
	return err
}
