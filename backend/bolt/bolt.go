// Package bolt persists the cache in an embedded bbolt database: one bucket
// named after the cache, one record per top-level key. It is granular and
// transactional without needing any external infrastructure, which makes it
// the sturdiest choice for single-node deployments that outgrow the file
// backend.
//
// Import for side effects to register the "bolt" backend:
//
//	import _ "github.com/unkn0wn-root/syncache/backend/bolt"
package bolt

import (
	"context"
	"fmt"

	bbolt "go.etcd.io/bbolt"

	"github.com/unkn0wn-root/syncache/backend"
	"github.com/unkn0wn-root/syncache/codec"
)

func init() {
	backend.Register("bolt", func(cfg backend.Config) (backend.Adapter, error) {
		return New(cfg)
	})
}

type Adapter struct {
	path   string
	bucket []byte
	codec  codec.Codec[any]
	db     *bbolt.DB
}

var (
	_ backend.Adapter       = (*Adapter)(nil)
	_ backend.Granular      = (*Adapter)(nil)
	_ backend.Transactional = (*Adapter)(nil)
)

func New(cfg backend.Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("bolt backend: cache name is required")
	}
	path := cfg.SavePath
	if path == "" {
		path = cfg.Name + ".bolt"
	}
	return &Adapter{path: path, bucket: []byte(cfg.Name), codec: cfg.ValueCodec()}, nil
}

func (a *Adapter) Connect(_ context.Context) error {
	if a.db != nil {
		return nil
	}
	db, err := bbolt.Open(a.path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("bolt backend: opening %s: %w", a.path, err)
	}
	a.db = db
	return nil
}

func (a *Adapter) Save(_ context.Context, snapshot map[string]any) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		// drop-and-recreate replaces the persisted state wholesale
		if tx.Bucket(a.bucket) != nil {
			if err := tx.DeleteBucket(a.bucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(a.bucket)
		if err != nil {
			return err
		}
		for key, v := range snapshot {
			data, err := a.codec.Encode(v)
			if err != nil {
				return fmt.Errorf("bolt backend: encoding %q: %w", key, err)
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Adapter) Fetch(_ context.Context) (map[string]any, error) {
	out := make(map[string]any)
	err := a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(a.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			key := string(k)
			raw := make([]byte, len(v))
			copy(raw, v)
			dec, derr := a.codec.Decode(raw)
			if derr != nil {
				out[key] = backend.RawValue{Key: key, Bytes: raw, Err: derr}
				return nil
			}
			out[key] = dec
			return nil
		})
	})
	return out, err
}

func (a *Adapter) GetKey(_ context.Context, key string) (any, bool, error) {
	var raw []byte
	err := a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(a.bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, false, err
	}
	dec, derr := a.codec.Decode(raw)
	if derr != nil {
		return backend.RawValue{Key: key, Bytes: raw, Err: derr}, true, nil
	}
	return dec, true, nil
}

func (a *Adapter) PutKey(_ context.Context, key string, value any) error {
	data, err := a.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("bolt backend: encoding %q: %w", key, err)
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(a.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (a *Adapter) Delete(_ context.Context, key string) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(a.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (a *Adapter) Has(_ context.Context, key string) (bool, error) {
	var ok bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(a.bucket)
		if b != nil {
			ok = b.Get([]byte(key)) != nil
		}
		return nil
	})
	return ok, err
}

func (a *Adapter) Clear(_ context.Context) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(a.bucket) == nil {
			return nil
		}
		return tx.DeleteBucket(a.bucket)
	})
}

func (a *Adapter) Close(context.Context) error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// Begin starts a writable bbolt transaction.
func (a *Adapter) Begin(_ context.Context) (backend.Txn, error) {
	tx, err := a.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &txn{tx: tx, bucket: a.bucket, codec: a.codec}, nil
}

type txn struct {
	tx     *bbolt.Tx
	bucket []byte
	codec  codec.Codec[any]
	done   bool
}

func (t *txn) Get(_ context.Context, key string) (any, bool, error) {
	b := t.tx.Bucket(t.bucket)
	if b == nil {
		return nil, false, nil
	}
	v := b.Get([]byte(key))
	if v == nil {
		return nil, false, nil
	}
	raw := make([]byte, len(v))
	copy(raw, v)
	dec, derr := t.codec.Decode(raw)
	if derr != nil {
		return backend.RawValue{Key: key, Bytes: raw, Err: derr}, true, nil
	}
	return dec, true, nil
}

func (t *txn) Put(_ context.Context, key string, value any) error {
	data, err := t.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("bolt backend: encoding %q: %w", key, err)
	}
	b := t.tx.Bucket(t.bucket)
	if b == nil {
		if b, err = t.tx.CreateBucket(t.bucket); err != nil {
			return err
		}
	}
	return b.Put([]byte(key), data)
}

func (t *txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Commit()
}

func (t *txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
