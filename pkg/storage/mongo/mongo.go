// Package mongo implements storage.Store on MongoDB.
//
// Two collections are used, "configs" and "images". Document ids are the
// storage keys without their kind segment (<p>/<id> and <p>/<id>/<key>), so
// ids sharing a prefix cluster together in the default _id index. Writes are
// upserts: saving the same id twice replaces the earlier document.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/storage"
)

// DefaultDatabase is used when Config.Database is empty.
const DefaultDatabase = "chartcn"

const disconnectTimeout = 5 * time.Second

// Config configures the MongoDB store.
type Config struct {
	URI      string
	Database string
}

type configDoc struct {
	ID        string    `bson:"_id"`
	ChartID   string    `bson:"chart_id"`
	Request   string    `bson:"request"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type imageDoc struct {
	ID          string    `bson:"_id"`
	Owner       string    `bson:"owner"`
	Key         string    `bson:"key"`
	Data        []byte    `bson:"data"`
	ContentType string    `bson:"content_type"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// Store is a MongoDB-backed storage.Store.
type Store struct {
	client  *mongo.Client
	configs *mongo.Collection
	images  *mongo.Collection
}

// New connects to MongoDB and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo: uri is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return NewWithClient(client, cfg.Database), nil
}

// NewWithClient wraps a connected client. The store disconnects it on Close.
func NewWithClient(client *mongo.Client, database string) *Store {
	if database == "" {
		database = DefaultDatabase
	}
	db := client.Database(database)
	return &Store{
		client:  client,
		configs: db.Collection(storage.KindConfig),
		images:  db.Collection(storage.KindImage),
	}
}

func (s *Store) SaveConfig(ctx context.Context, id string, req *chart.Request) error {
	if err := storage.CheckID(id); err != nil {
		return err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return storage.Wrap(err, "encode", id)
	}
	doc := configDoc{ID: configDocID(id), ChartID: id, Request: string(data), UpdatedAt: time.Now().UTC()}
	return storage.Wrap(s.upsert(ctx, s.configs, doc.ID, doc), "save config", id)
}

func (s *Store) GetConfig(ctx context.Context, id string) (*chart.Request, bool, error) {
	if err := storage.CheckID(id); err != nil {
		return nil, false, err
	}
	var doc configDoc
	err := s.configs.FindOne(ctx, bson.M{"_id": configDocID(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.Wrap(err, "get config", id)
	}

	var req chart.Request
	if err := json.Unmarshal([]byte(doc.Request), &req); err != nil {
		return nil, false, storage.Wrap(err, "decode", id)
	}
	return &req, true, nil
}

func (s *Store) SaveImage(ctx context.Context, id, key string, data []byte, contentType string) error {
	if err := storage.CheckImage(id, key); err != nil {
		return err
	}
	doc := imageDoc{
		ID:          imageDocID(id, key),
		Owner:       id,
		Key:         key,
		Data:        data,
		ContentType: contentType,
		UpdatedAt:   time.Now().UTC(),
	}
	return storage.Wrap(s.upsert(ctx, s.images, doc.ID, doc), "save image", id)
}

func (s *Store) GetImage(ctx context.Context, id, key string) (*storage.Image, bool, error) {
	if err := storage.CheckImage(id, key); err != nil {
		return nil, false, err
	}
	var doc imageDoc
	err := s.images.FindOne(ctx, bson.M{"_id": imageDocID(id, key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.Wrap(err, "get image", id)
	}
	return &storage.Image{Data: doc.Data, ContentType: doc.ContentType}, true, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) upsert(ctx context.Context, coll *mongo.Collection, id string, doc any) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func configDocID(id string) string {
	return path.Join(storage.Prefix(id), id)
}

func imageDocID(id, key string) string {
	return path.Join(storage.Prefix(id), id, key)
}

// Ensure Store implements storage.Store.
var _ storage.Store = (*Store)(nil)
