// Package mongo persists the cache in a MongoDB collection: one document
// per top-level key, _id holding the key, value holding the serialized
// record, updatedAt the last write time.
//
// The adapter is granular but not Transactional — multi-statement
// transactions require a replica set, which a process-local cache cannot
// assume. Compound updates are therefore best-effort at the storage level;
// the coordinator lock still serializes them within the process.
//
// Import for side effects to register the "mongodb" backend:
//
//	import _ "github.com/unkn0wn-root/syncache/backend/mongo"
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unkn0wn-root/syncache/backend"
	"github.com/unkn0wn-root/syncache/codec"
)

func init() {
	backend.Register("mongodb", func(cfg backend.Config) (backend.Adapter, error) {
		return New(cfg)
	})
}

type record struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type Adapter struct {
	cfg    backend.Config
	codec  codec.Codec[any]
	client *mongo.Client
	coll   *mongo.Collection
}

var (
	_ backend.Adapter  = (*Adapter)(nil)
	_ backend.Granular = (*Adapter)(nil)
)

func New(cfg backend.Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("mongo backend: cache name is required")
	}
	return &Adapter{cfg: cfg, codec: cfg.ValueCodec()}, nil
}

func (a *Adapter) Connect(ctx context.Context) error {
	if a.client != nil {
		return nil
	}
	opts := options.Client().ApplyURI("mongodb://" + a.cfg.Addr(27017))
	if a.cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username: a.cfg.Username,
			Password: a.cfg.Password,
		})
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("mongo backend: connecting %s: %w", a.cfg.Addr(27017), err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("mongo backend: ping %s: %w", a.cfg.Addr(27017), err)
	}
	db := a.cfg.Database
	if db == "" {
		db = "syncache"
	}
	coll := a.cfg.Collection
	if coll == "" {
		coll = a.cfg.Name
	}
	a.client = client
	a.coll = client.Database(db).Collection(coll)
	return nil
}

func (a *Adapter) Save(ctx context.Context, snapshot map[string]any) error {
	models := make([]mongo.WriteModel, 0, len(snapshot))
	now := time.Now().UTC()
	for key, v := range snapshot {
		data, err := a.codec.Encode(v)
		if err != nil {
			return fmt.Errorf("mongo backend: encoding %q: %w", key, err)
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": key}).
			SetReplacement(record{Key: key, Value: data, UpdatedAt: now}).
			SetUpsert(true))
	}
	// drop rows for keys no longer in the snapshot
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	models = append(models, mongo.NewDeleteManyModel().
		SetFilter(bson.M{"_id": bson.M{"$nin": keys}}))

	_, err := a.coll.BulkWrite(ctx, models)
	return err
}

func (a *Adapter) Fetch(ctx context.Context) (map[string]any, error) {
	cur, err := a.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]any)
	for cur.Next(ctx) {
		var rec record
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		dec, derr := a.codec.Decode(rec.Value)
		if derr != nil {
			out[rec.Key] = backend.RawValue{Key: rec.Key, Bytes: rec.Value, Err: derr}
			continue
		}
		out[rec.Key] = dec
	}
	return out, cur.Err()
}

func (a *Adapter) GetKey(ctx context.Context, key string) (any, bool, error) {
	var rec record
	err := a.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	dec, derr := a.codec.Decode(rec.Value)
	if derr != nil {
		return backend.RawValue{Key: key, Bytes: rec.Value, Err: derr}, true, nil
	}
	return dec, true, nil
}

func (a *Adapter) PutKey(ctx context.Context, key string, value any) error {
	data, err := a.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("mongo backend: encoding %q: %w", key, err)
	}
	_, err = a.coll.ReplaceOne(ctx, bson.M{"_id": key},
		record{Key: key, Value: data, UpdatedAt: time.Now().UTC()},
		options.Replace().SetUpsert(true))
	return err
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	_, err := a.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (a *Adapter) Has(ctx context.Context, key string) (bool, error) {
	n, err := a.coll.CountDocuments(ctx, bson.M{"_id": key},
		options.Count().SetLimit(1))
	return n > 0, err
}

func (a *Adapter) Clear(ctx context.Context) error {
	_, err := a.coll.DeleteMany(ctx, bson.D{})
	return err
}

func (a *Adapter) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	err := a.client.Disconnect(ctx)
	a.client = nil
	a.coll = nil
	return err
}
