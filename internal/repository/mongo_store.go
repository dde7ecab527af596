package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoConfig struct {
	URI            string
	Database       string
	User           string
	Password       string
	ConnectTimeout time.Duration
}

func (c MongoConfig) creds() *options.Credential {
	if c.Password != "" && c.User != "" {
		return &options.Credential{
			Username:    c.User,
			Password:    c.Password,
			PasswordSet: true,
		}
	}
	return nil
}

// ConnectMongo opens a client and returns the configured database.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout)

	if creds := cfg.creds(); creds != nil {
		opts.SetAuth(*creds)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return client.Database(cfg.Database), nil
}

// MongoStore persists records as documents; the record id is the _id.
type MongoStore[T Record] struct {
	coll *mongo.Collection
}

func NewMongoStore[T Record](db *mongo.Database, collection string) *MongoStore[T] {
	return &MongoStore[T]{coll: db.Collection(collection)}
}

func mongoFilter(filter Filter) bson.M {
	m := bson.M{}
	for k, v := range filter {
		if k == "id" {
			k = "_id"
		}
		m[k] = v
	}
	return m
}

func (s *MongoStore[T]) Put(ctx context.Context, rec T) error {
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": rec.RecordID()},
		rec,
		options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore[T]) Get(ctx context.Context, id string) (*T, error) {
	var rec T
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore[T]) GetAll(ctx context.Context, filter Filter, opts FindOptions) ([]T, error) {
	findOpts := options.Find()
	if opts.SortByCreatedDesc {
		findOpts.SetSort(bson.D{{Key: "createdAt", Value: -1}})
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := s.coll.Find(ctx, mongoFilter(filter), findOpts)
	if err != nil {
		return nil, err
	}
	recs := make([]T, 0)
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Update applies fields with $set. Field names double as document keys.
func (s *MongoStore[T]) Update(ctx context.Context, id string, fields Fields) (*T, error) {
	set := bson.M{}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		return s.Get(ctx, id)
	}

	var rec T
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore[T]) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore[T]) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, mongoFilter(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Increment uses $inc, which is atomic across processes.
func (s *MongoStore[T]) Increment(ctx context.Context, id, field string, delta int) (*T, error) {
	var rec T
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{field: delta}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MongoStore[T]) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, readpref.Primary())
}
