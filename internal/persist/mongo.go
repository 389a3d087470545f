package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultMongoDatabase   = "opsbot"
	defaultMongoCollection = "brains"
)

// mongoCollection is the part of *mongo.Collection the persister uses.
type mongoCollection interface {
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
}

type mongoSnapshot struct {
	Key     string    `bson:"_id"`
	Brain   string    `bson:"brain"`
	SavedAt time.Time `bson:"savedAt"`
}

// Mongo keeps one document per key; an upserting replace swaps it whole.
type Mongo struct {
	uri        string
	database   string
	collection string
	client     *mongo.Client
	coll       mongoCollection
	started    atomic.Bool
}

func NewMongo(uri, database, collection string) (*Mongo, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("mongo persister requires a url")
	}
	if database == "" {
		database = defaultMongoDatabase
	}
	if collection == "" {
		collection = defaultMongoCollection
	}
	return &Mongo{uri: uri, database: database, collection: collection}, nil
}

func (m *Mongo) Start(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.uri))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("mongo ping: %w", err)
	}
	m.client = client
	m.coll = client.Database(m.database).Collection(m.collection)
	m.started.Store(true)
	return nil
}

func (m *Mongo) Verify(snapshot Snapshot) bool {
	return Verify(snapshot)
}

func (m *Mongo) Save(ctx context.Context, snapshot Snapshot, key string) error {
	if !m.started.Load() {
		return ErrNotInitialized
	}
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	doc := mongoSnapshot{Key: key, Brain: string(data), SavedAt: time.Now().UTC()}
	_, err = m.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: key}}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) Recover(ctx context.Context, key string) (Snapshot, error) {
	if !m.started.Load() {
		return nil, ErrNotInitialized
	}
	var doc mongoSnapshot
	if err := m.coll.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return decode([]byte(doc.Brain))
}

func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}
