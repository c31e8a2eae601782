package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/docservice/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo connects to uri and verifies the connection within timeout.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// MongoModel executes queries against a MongoDB collection. Storage
// identifiers are ObjectIDs unless the caller supplies its own _id.
type MongoModel struct {
	coll *mongo.Collection
	opts ModelOptions
}

// NewMongoModel binds a collection of db and ensures a sparse unique index
// for every unique field.
func NewMongoModel(ctx context.Context, db *mongo.Database, opts ModelOptions) (*MongoModel, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	coll := db.Collection(opts.Collection)

	for _, field := range opts.Unique {
		_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName(field + "_1"),
		})
		if err != nil {
			return nil, fmt.Errorf("create unique index on %s.%s: %w", opts.Collection, field, err)
		}
	}
	return &MongoModel{coll: coll, opts: opts}, nil
}

func (m *MongoModel) Find(conditions map[string]any) *document.Query {
	return document.NewQuery(m, document.OpFind, conditions)
}

func (m *MongoModel) FindByID(id string) *document.Query {
	q := document.NewQuery(m, document.OpFindByID, nil)
	q.ID = id
	return q
}

func (m *MongoModel) FindByIDAndUpdate(id string, data document.Document, opts UpdateOptions) *document.Query {
	q := document.NewQuery(m, document.OpFindByIDAndUpdate, nil)
	q.ID = id
	q.Update = data.Clone()
	q.Upsert = opts.Upsert
	return q
}

func (m *MongoModel) FindByIDAndRemove(id string) *document.Query {
	q := document.NewQuery(m, document.OpFindByIDAndRemove, nil)
	q.ID = id
	return q
}

// Save inserts data, assigning a new ObjectID when it has no _id.
func (m *MongoModel) Save(ctx context.Context, data document.Document) (document.Document, error) {
	doc := data.Clone()
	if doc == nil {
		doc = document.Document{}
	}
	if key, ok := doc[document.KeyField]; !ok || key == nil {
		doc[document.KeyField] = primitive.NewObjectID()
	}

	if _, err := m.coll.InsertOne(ctx, bson.M(doc)); err != nil {
		return nil, fmt.Errorf("insert document: %w", mapMongoError(err))
	}
	return m.opts.present(doc, nil), nil
}

// Exec implements document.Executor.
func (m *MongoModel) Exec(ctx context.Context, q *document.Query) (any, error) {
	opts := q.Options()

	switch q.Op {
	case document.OpFind:
		findOpts := options.Find()
		if len(opts.Sort) > 0 {
			findOpts.SetSort(sortDocument(opts.Sort))
		}
		if opts.Limit > 0 {
			findOpts.SetLimit(opts.Limit)
		}
		if opts.Skip > 0 {
			findOpts.SetSkip(opts.Skip)
		}
		if len(opts.Projection) > 0 {
			findOpts.SetProjection(projectionDocument(opts.Projection))
		}

		cursor, err := m.coll.Find(ctx, filterDocument(q.Conditions), findOpts)
		if err != nil {
			return nil, fmt.Errorf("find documents: %w", mapMongoError(err))
		}
		var raw []bson.M
		if err := cursor.All(ctx, &raw); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
		results := make([]document.Document, len(raw))
		for i, r := range raw {
			results[i] = m.opts.present(fromBSON(r), nil)
		}
		return results, nil

	case document.OpFindByID:
		findOpts := options.FindOne()
		if len(opts.Projection) > 0 {
			findOpts.SetProjection(projectionDocument(opts.Projection))
		}
		return m.decodeOne(m.coll.FindOne(ctx, m.byID(q), findOpts))

	case document.OpFindByIDAndUpdate:
		patch := q.Update.Clone()
		delete(patch, document.KeyField)
		if len(patch) == 0 && !q.Upsert {
			findOpts := options.FindOne()
			if len(opts.Projection) > 0 {
				findOpts.SetProjection(projectionDocument(opts.Projection))
			}
			return m.decodeOne(m.coll.FindOne(ctx, m.byID(q), findOpts))
		}

		updOpts := options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetUpsert(q.Upsert)
		if len(opts.Projection) > 0 {
			updOpts.SetProjection(projectionDocument(opts.Projection))
		}
		update := bson.M{"$set": bson.M(patch)}
		return m.decodeOne(m.coll.FindOneAndUpdate(ctx, m.byID(q), update, updOpts))

	case document.OpFindByIDAndRemove:
		delOpts := options.FindOneAndDelete()
		if len(opts.Projection) > 0 {
			delOpts.SetProjection(projectionDocument(opts.Projection))
		}
		return m.decodeOne(m.coll.FindOneAndDelete(ctx, m.byID(q), delOpts))

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOp, q.Op)
	}
}

func (m *MongoModel) decodeOne(res *mongo.SingleResult) (any, error) {
	var raw bson.M
	if err := res.Decode(&raw); err != nil {
		return nil, mapMongoError(err)
	}
	return m.opts.present(fromBSON(raw), nil), nil
}

// byID combines the query's conditions with its storage identifier.
func (m *MongoModel) byID(q *document.Query) bson.M {
	filter := filterDocument(q.Conditions)
	filter[document.KeyField] = objectID(q.ID)
	return filter
}

// objectID returns an ObjectID for 24-character hex ids and the raw string
// otherwise.
func objectID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func filterDocument(conditions map[string]any) bson.M {
	filter := make(bson.M, len(conditions))
	for k, v := range conditions {
		if s, ok := v.(string); ok && k == document.KeyField {
			filter[k] = objectID(s)
			continue
		}
		filter[k] = v
	}
	return filter
}

func sortDocument(fields []document.SortField) bson.D {
	d := make(bson.D, 0, len(fields))
	for _, f := range fields {
		dir := 1
		if f.Descending {
			dir = -1
		}
		d = append(d, bson.E{Key: f.Field, Value: dir})
	}
	return d
}

func projectionDocument(p document.Projection) bson.M {
	out := make(bson.M, len(p))
	for field, include := range p {
		if include {
			out[field] = 1
		} else {
			out[field] = 0
		}
	}
	return out
}

// fromBSON converts decoded BSON containers into document values.
func fromBSON(v any) document.Document {
	doc, _ := convertBSON(v).(document.Document)
	return doc
}

func convertBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(document.Document, len(t))
		for k, e := range t {
			out[k] = convertBSON(e)
		}
		return out
	case bson.D:
		out := make(document.Document, len(t))
		for _, e := range t {
			out[e.Key] = convertBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = convertBSON(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

func mapMongoError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return duplicateKeyError(err.Error())
	default:
		return err
	}
}

var _ Model = (*MongoModel)(nil)
