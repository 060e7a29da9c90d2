package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MongoStore backs the collection API with MongoDB. Documents are addressed
// by _id; the collection's partition field is included in every point read
// and write so documents are only visible through their own partition, as
// the abstraction promises.
type MongoStore struct {
	db     *mongo.Database
	tracer trace.Tracer
}

// ConnectMongo dials the server and pings it so misconfiguration fails at
// startup rather than on the first request.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{
		db:     client.Database(database),
		tracer: otel.Tracer("docstore"),
	}, nil
}

// Close releases the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

func (s *MongoStore) Collection(name, partitionField string) Collection {
	return &mongoCollection{
		coll:           s.db.Collection(name),
		partitionField: partitionField,
		tracer:         s.tracer,
	}
}

type mongoCollection struct {
	coll           *mongo.Collection
	partitionField string
	tracer         trace.Tracer
}

// pointFilter addresses one document within its partition.
func (c *mongoCollection) pointFilter(id, partition string) bson.M {
	filter := bson.M{"_id": id}
	if c.partitionField != "_id" && partition != "" {
		filter[c.partitionField] = partition
	}
	return filter
}

func (c *mongoCollection) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "docstore."+op,
		trace.WithAttributes(attribute.String("collection", c.coll.Name())))
}

func (c *mongoCollection) Get(ctx context.Context, id, partition string, out any) error {
	ctx, span := c.span(ctx, "get")
	defer span.End()
	err := c.coll.FindOne(ctx, c.pointFilter(id, partition)).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *mongoCollection) Create(ctx context.Context, id, partition string, doc any) error {
	ctx, span := c.span(ctx, "create")
	defer span.End()
	_, err := c.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *mongoCollection) Upsert(ctx context.Context, id, partition string, doc any) error {
	ctx, span := c.span(ctx, "upsert")
	defer span.End()
	opts := options.Replace().SetUpsert(true)
	_, err := c.coll.ReplaceOne(ctx, c.pointFilter(id, partition), doc, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *mongoCollection) Delete(ctx context.Context, id, partition string) error {
	ctx, span := c.span(ctx, "delete")
	defer span.End()
	res, err := c.coll.DeleteOne(ctx, c.pointFilter(id, partition))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Query(ctx context.Context, q Query, out any) error {
	ctx, span := c.span(ctx, "query")
	defer span.End()

	filter := bson.M{}
	for _, f := range q.Filters {
		field := f.Field
		if field == "id" {
			field = "_id"
		}
		switch f.Op {
		case OpEq:
			filter[field] = f.Value
		case OpGte, OpLte:
			op := "$gte"
			if f.Op == OpLte {
				op = "$lte"
			}
			sub, ok := filter[field].(bson.M)
			if !ok {
				sub = bson.M{}
				filter[field] = sub
			}
			sub[op] = f.Value
		}
	}

	opts := options.Find()
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
