// Package redis persists the cache in Redis (or any Valkey-compatible
// server).
//
// Two layouts are supported:
//
//   - blob (default): one physical key named after the cache, holding the
//     JSON-serialized snapshot;
//   - granular (Config.Granular): one physical key "<name>:<key>" per
//     top-level cache key, each value run through the configured codec.
//
// Granular mode additionally exposes a native atomic counter via
// INCRBYFLOAT, which the cache prefers over a locked read-modify-write for
// top-level numeric keys. This only works because the JSON/default codec
// stores bare numbers as plain numeric literals.
//
// Import for side effects to register the "redis" and "valkey" backends:
//
//	import _ "github.com/unkn0wn-root/syncache/backend/redis"
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/syncache/backend"
	"github.com/unkn0wn-root/syncache/codec"
)

func init() {
	factory := func(cfg backend.Config) (backend.Adapter, error) { return New(cfg) }
	backend.Register("redis", factory)
	backend.Register("valkey", factory)
}

// Adapter talks to one logical Redis database. The client is created
// lazily on Connect unless one was injected with NewWithClient.
type Adapter struct {
	cfg         backend.Config
	codec       codec.Codec[any]
	rdb         goredis.UniversalClient
	closeClient bool
}

var (
	_ backend.Adapter  = (*Adapter)(nil)
	_ backend.Granular = (*Adapter)(nil)
	_ backend.Adder    = (*Adapter)(nil)
)

func New(cfg backend.Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("redis backend: cache name is required")
	}
	return &Adapter{cfg: cfg, codec: cfg.ValueCodec(), closeClient: true}, nil
}

// NewWithClient wraps an existing client. Set closeClient only if this
// adapter exclusively owns it.
func NewWithClient(cfg backend.Config, client goredis.UniversalClient, closeClient bool) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("redis backend: nil client")
	}
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}
	a.rdb = client
	a.closeClient = closeClient
	return a, nil
}

func (a *Adapter) Connect(ctx context.Context) error {
	if a.rdb == nil {
		db := 0
		if a.cfg.Database != "" {
			n, err := strconv.Atoi(a.cfg.Database)
			if err != nil {
				return fmt.Errorf("redis backend: database must be a DB index: %w", err)
			}
			db = n
		}
		a.rdb = goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.Addr(6379),
			Username: a.cfg.Username,
			Password: a.cfg.Password,
			DB:       db,
		})
	}
	if err := a.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis backend: ping %s: %w", a.cfg.Addr(6379), err)
	}
	return nil
}

// blobKey is the single physical key used in blob mode.
func (a *Adapter) blobKey() string { return a.cfg.Name }

// recordKey namespaces one top-level cache key in granular mode.
func (a *Adapter) recordKey(key string) string { return a.cfg.Name + ":" + key }

func (a *Adapter) Save(ctx context.Context, snapshot map[string]any) error {
	if !a.cfg.Granular {
		data, err := codec.JSON[map[string]any]{}.Encode(snapshot)
		if err != nil {
			return fmt.Errorf("redis backend: encoding snapshot: %w", err)
		}
		return a.rdb.Set(ctx, a.blobKey(), data, 0).Err()
	}

	existing, err := a.scanRecordKeys(ctx)
	if err != nil {
		return err
	}
	pipe := a.rdb.TxPipeline()
	for _, full := range existing {
		key := strings.TrimPrefix(full, a.cfg.Name+":")
		if _, keep := snapshot[key]; !keep {
			pipe.Del(ctx, full)
		}
	}
	for key, v := range snapshot {
		data, err := a.codec.Encode(v)
		if err != nil {
			return fmt.Errorf("redis backend: encoding %q: %w", key, err)
		}
		pipe.Set(ctx, a.recordKey(key), data, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (a *Adapter) Fetch(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any)
	if !a.cfg.Granular {
		raw, err := a.rdb.Get(ctx, a.blobKey()).Bytes()
		if err == goredis.Nil {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		doc, derr := codec.JSON[map[string]any]{}.Decode(raw)
		if derr != nil {
			return map[string]any{}, &backend.MalformedError{Raw: raw, Err: derr}
		}
		if doc == nil {
			doc = map[string]any{}
		}
		return doc, nil
	}

	keys, err := a.scanRecordKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := a.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		key := strings.TrimPrefix(keys[i], a.cfg.Name+":")
		var raw []byte
		switch vv := v.(type) {
		case nil:
			continue // expired/raced between SCAN and MGET
		case string:
			raw = []byte(vv)
		case []byte:
			raw = vv
		default:
			raw = []byte(fmt.Sprint(vv))
		}
		dec, derr := a.codec.Decode(raw)
		if derr != nil {
			out[key] = backend.RawValue{Key: key, Bytes: raw, Err: derr}
			continue
		}
		out[key] = dec
	}
	return out, nil
}

func (a *Adapter) GetKey(ctx context.Context, key string) (any, bool, error) {
	raw, err := a.rdb.Get(ctx, a.recordKey(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	dec, derr := a.codec.Decode(raw)
	if derr != nil {
		return backend.RawValue{Key: key, Bytes: raw, Err: derr}, true, nil
	}
	return dec, true, nil
}

func (a *Adapter) PutKey(ctx context.Context, key string, value any) error {
	data, err := a.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("redis backend: encoding %q: %w", key, err)
	}
	return a.rdb.Set(ctx, a.recordKey(key), data, 0).Err()
}

// AddKey uses INCRBYFLOAT, treating a missing record as 0. It returns a
// server-side error when the stored value is not a plain number.
func (a *Adapter) AddKey(ctx context.Context, key string, delta float64) (float64, error) {
	return a.rdb.IncrByFloat(ctx, a.recordKey(key), delta).Result()
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	if a.cfg.Granular {
		return a.rdb.Del(ctx, a.recordKey(key)).Err()
	}
	doc, err := a.Fetch(ctx)
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return a.Save(ctx, doc)
}

func (a *Adapter) Has(ctx context.Context, key string) (bool, error) {
	if a.cfg.Granular {
		n, err := a.rdb.Exists(ctx, a.recordKey(key)).Result()
		return n > 0, err
	}
	doc, err := a.Fetch(ctx)
	if err != nil {
		return false, err
	}
	_, ok := doc[key]
	return ok, nil
}

func (a *Adapter) Clear(ctx context.Context) error {
	if !a.cfg.Granular {
		return a.rdb.Del(ctx, a.blobKey()).Err()
	}
	keys, err := a.scanRecordKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return a.rdb.Del(ctx, keys...).Err()
}

// Close releases the underlying client only when this adapter owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (a *Adapter) Close(context.Context) error {
	if a.rdb == nil || !a.closeClient {
		return nil
	}
	if err := a.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

func (a *Adapter) scanRecordKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := a.rdb.Scan(ctx, 0, a.cfg.Name+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
