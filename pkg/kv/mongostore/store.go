// Package mongostore implements kv.Store on a MongoDB collection, one
// document per key. Increments use $inc with upsert.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/arcana/pkg/kv"
)

type entry struct {
	Key       string    `bson:"_id"`
	Str       *string   `bson:"s,omitempty"`
	Int       *int64    `bson:"i,omitempty"`
	List      []string  `bson:"l,omitempty"`
	IsList    bool      `bson:"is_list,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store is a MongoDB-backed kv.Store.
type Store struct {
	coll *mongo.Collection
}

var (
	_ kv.Store         = (*Store)(nil)
	_ kv.Incrementer   = (*Store)(nil)
	_ kv.Healthchecker = (*Store)(nil)
)

// New returns a store over coll.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// NewFromClient returns a store over the collection named in cfg.
func NewFromClient(client *mongo.Client, cfg Config) *Store {
	return New(client.Database(cfg.Database).Collection(cfg.Collection))
}

func (s *Store) find(ctx context.Context, key string) (*entry, error) {
	if key == "" {
		return nil, kv.ErrEmptyKey
	}
	var e entry
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) put(ctx context.Context, key string, set bson.M, unset ...string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	set["updated_at"] = time.Now().UTC()
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		u := bson.M{}
		for _, f := range unset {
			u[f] = ""
		}
		update["$unset"] = u
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": key}, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	e, err := s.find(ctx, key)
	if err != nil {
		return "", err
	}
	if e.Str == nil {
		return "", kv.ErrTypeMismatch
	}
	return *e.Str, nil
}

func (s *Store) SetString(ctx context.Context, key, value string) error {
	return s.put(ctx, key, bson.M{"s": value}, "i", "l", "is_list")
}

func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	e, err := s.find(ctx, key)
	if err != nil {
		return 0, err
	}
	if e.Int == nil {
		return 0, kv.ErrTypeMismatch
	}
	return *e.Int, nil
}

func (s *Store) SetInt(ctx context.Context, key string, value int64) error {
	return s.put(ctx, key, bson.M{"i": value}, "s", "l", "is_list")
}

func (s *Store) GetStrings(ctx context.Context, key string) ([]string, error) {
	e, err := s.find(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !e.IsList {
		return nil, kv.ErrTypeMismatch
	}
	if len(e.List) == 0 {
		return nil, nil
	}
	return e.List, nil
}

func (s *Store) SetStrings(ctx context.Context, key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	return s.put(ctx, key, bson.M{"l": values, "is_list": true}, "s", "i")
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}})
	return err
}

// Incr adds delta to the integer at key with an upserting $inc.
func (s *Store) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	if key == "" {
		return 0, kv.ErrEmptyKey
	}
	update := bson.M{
		"$inc": bson.M{"i": delta},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var e entry
	if err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&e); err != nil {
		return 0, err
	}
	if e.Int == nil {
		return 0, kv.ErrTypeMismatch
	}
	return *e.Int, nil
}

// Healthcheck pings the deployment.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := s.coll.Database().Client().Ping(ctx, nil); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}
