// Package mongo implements the document store on MongoDB. Filters, updates
// and pipelines are translated to their native query language so the
// server evaluates them.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/bart-jansen/opencga/internal/docstore"
)

var _ docstore.Store = (*Store)(nil)

const (
	defaultURI      = "mongodb://localhost:27017"
	defaultDatabase = "catalog"
	countersName    = "_counters"
)

// Config selects the deployment and database.
type Config struct {
	URI      string
	Database string
}

// Store is a docstore.Store over one MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	closed atomic.Bool
}

// Open connects and pings the server.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	uri := cfg.URI
	if uri == "" {
		uri = defaultURI
	}
	name := cfg.Database
	if name == "" {
		name = defaultDatabase
	}
	opts := options.Client().ApplyURI(uri).SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(name)}, nil
}

// Database exposes the underlying handle for integration tests.
func (s *Store) Database() *mongo.Database { return s.db }

// Collection implements docstore.Store.
func (s *Store) Collection(name string) docstore.Collection {
	return &collection{store: s, coll: s.db.Collection(name), name: name}
}

// EnsureIndex implements docstore.Store.
func (s *Store) EnsureIndex(ctx context.Context, coll string, idx docstore.Index) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	keys := bson.D{}
	for _, k := range idx.Keys {
		keys = append(keys, bson.E{Key: k, Value: 1})
	}
	opts := options.Index().SetUnique(idx.Unique)
	if idx.Name != "" {
		opts.SetName(idx.Name)
	}
	if idx.Partial != nil {
		partial, err := translateFilter(idx.Partial)
		if err != nil {
			return fmt.Errorf("index %s: %w", idx.Name, err)
		}
		opts.SetPartialFilterExpression(partial)
	}
	_, err := s.db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts})
	return mapErr(coll, err)
}

// NextID implements docstore.Store with an upserting $inc.
func (s *Store) NextID(ctx context.Context, counter string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var out struct {
		Value int64 `bson:"value"`
	}
	err := s.db.Collection(countersName).FindOneAndUpdate(ctx,
		bson.D{{Key: docstore.IDField, Value: counter}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", counter, err)
	}
	return out.Value, nil
}

// Close implements docstore.Store.
func (s *Store) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return docstore.ErrClosed
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return docstore.ErrClosed
	}
	return ctx.Err()
}

type collection struct {
	store *Store
	coll  *mongo.Collection
	name  string
}

func (c *collection) Name() string { return c.name }

func (c *collection) Insert(ctx context.Context, doc docstore.Document) error {
	if err := c.store.check(ctx); err != nil {
		return err
	}
	if _, ok := doc[docstore.IDField]; !ok {
		return fmt.Errorf("%s: document without %s", c.name, docstore.IDField)
	}
	_, err := c.coll.InsertOne(ctx, map[string]any(doc))
	return mapErr(c.name, err)
}

func (c *collection) Find(ctx context.Context, filter docstore.Filter, opts docstore.FindOptions) (docstore.Cursor, error) {
	if err := c.store.check(ctx); err != nil {
		return nil, err
	}
	q, err := translateFilter(filter)
	if err != nil {
		return nil, err
	}
	fo := options.Find()
	if proj := translateProjection(opts.Projection); proj != nil {
		fo.SetProjection(proj)
	}
	if len(opts.Sort) > 0 {
		fo.SetSort(translateSort(opts.Sort))
	}
	if opts.Skip > 0 {
		fo.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		fo.SetLimit(int64(opts.Limit))
	}
	cur, err := c.coll.Find(ctx, q, fo)
	if err != nil {
		return nil, mapErr(c.name, err)
	}
	return &cursor{cur: cur}, nil
}

// Update runs the translated update documents in order. When the mutations
// need more than one document, the matched ids are captured first so later
// steps address the same documents even if they no longer match filter.
func (c *collection) Update(ctx context.Context, filter docstore.Filter, muts []docstore.Mutation) (docstore.UpdateResult, error) {
	if err := c.store.check(ctx); err != nil {
		return docstore.UpdateResult{}, err
	}
	q, err := translateFilter(filter)
	if err != nil {
		return docstore.UpdateResult{}, err
	}
	updates, err := translateUpdate(muts)
	if err != nil {
		return docstore.UpdateResult{}, err
	}
	if len(updates) == 0 {
		n, err := c.coll.CountDocuments(ctx, q)
		return docstore.UpdateResult{Matched: n}, mapErr(c.name, err)
	}
	if len(updates) > 1 {
		var values bson.A
		if err := c.coll.Distinct(ctx, docstore.IDField, q).Decode(&values); err != nil {
			return docstore.UpdateResult{}, mapErr(c.name, err)
		}
		q = bson.D{{Key: docstore.IDField, Value: bson.D{{Key: "$in", Value: values}}}}
	}
	var res docstore.UpdateResult
	for i, u := range updates {
		opts := options.UpdateMany()
		if len(u.arrayFilters) > 0 {
			opts.SetArrayFilters(u.arrayFilters)
		}
		out, err := c.coll.UpdateMany(ctx, q, u.Document(), opts)
		if err != nil {
			return res, mapErr(c.name, err)
		}
		if i == 0 {
			res.Matched = out.MatchedCount
		}
		res.Modified = max(res.Modified, out.ModifiedCount)
	}
	return res, nil
}

func (c *collection) Count(ctx context.Context, filter docstore.Filter) (int64, error) {
	if err := c.store.check(ctx); err != nil {
		return 0, err
	}
	q, err := translateFilter(filter)
	if err != nil {
		return 0, err
	}
	n, err := c.coll.CountDocuments(ctx, q)
	return n, mapErr(c.name, err)
}

func (c *collection) Distinct(ctx context.Context, path string, filter docstore.Filter) ([]any, error) {
	if err := c.store.check(ctx); err != nil {
		return nil, err
	}
	q, err := translateFilter(filter)
	if err != nil {
		return nil, err
	}
	var values bson.A
	if err := c.coll.Distinct(ctx, path, q).Decode(&values); err != nil {
		return nil, mapErr(c.name, err)
	}
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, fromBSON(v))
	}
	return out, nil
}

func (c *collection) Aggregate(ctx context.Context, pipeline docstore.Pipeline) ([]docstore.Document, error) {
	if err := c.store.check(ctx); err != nil {
		return nil, err
	}
	stages, err := translatePipeline(pipeline)
	if err != nil {
		return nil, err
	}
	cur, err := c.coll.Aggregate(ctx, stages)
	if err != nil {
		return nil, mapErr(c.name, err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, mapErr(c.name, err)
	}
	out := make([]docstore.Document, 0, len(raw))
	for _, m := range raw {
		out = append(out, toDocument(m))
	}
	return out, nil
}

type cursor struct {
	cur *mongo.Cursor
	doc docstore.Document
	err error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.cur.Next(ctx) {
		return false
	}
	var m bson.M
	if err := c.cur.Decode(&m); err != nil {
		c.err = err
		return false
	}
	c.doc = toDocument(m)
	return true
}

func (c *cursor) Document() docstore.Document { return c.doc }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *cursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

func mapErr(name string, err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s: %v", docstore.ErrDuplicateKey, name, err)
	case errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%s: %w", name, docstore.ErrClosed)
	default:
		return fmt.Errorf("%s: %w", name, err)
	}
}
