package extractor

import (
	"context"
	"iter"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	goMongo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mongo2csv/internal/common"
	"mongo2csv/internal/pipeline"
)

const DefaultMongoBatchSize = 1000

// Collection defines the interface for MongoDB collection operations needed by MongoExtractor.
type Collection interface {
	Aggregate(ctx context.Context, pipeline any, opts ...*options.AggregateOptions) (Cursor, error)
}

// Cursor defines the interface for MongoDB cursor operations needed by MongoExtractor.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Close(ctx context.Context) error
	Err() error
}

// MongoExtractor streams the results of an aggregation as Records.
type MongoExtractor struct {
	collection Collection
	definition pipeline.Definition
	batchSize  int // Number of documents the server returns per getMore.
	consumed   atomic.Bool
}

var _ common.RecordSource = (*MongoExtractor)(nil)

// mongoCollectionWrapper wraps *mongo.Collection to implement Collection interface.
type mongoCollectionWrapper struct {
	Collection *goMongo.Collection
}

// mongoCursorWrapper wraps *mongo.Cursor to implement Cursor interface.
type mongoCursorWrapper struct {
	*goMongo.Cursor
}

// Aggregate runs an aggregation on the wrapped collection.
func (w *mongoCollectionWrapper) Aggregate(ctx context.Context, pipeline any, opts ...*options.AggregateOptions) (Cursor, error) {
	cursor, err := w.Collection.Aggregate(ctx, pipeline, opts...)
	if err != nil {
		return nil, err
	}
	return &mongoCursorWrapper{cursor}, nil
}

// newMongoExtractor creates a new MongoDB extractor with default values.
func newMongoExtractor(collection Collection, def pipeline.Definition) *MongoExtractor {
	return &MongoExtractor{
		collection: collection,
		definition: def,
		batchSize:  DefaultMongoBatchSize,
	}
}

// NewMongoExtractor creates a MongoExtractor running def against db.
// The caller keeps ownership of the client behind db.
func NewMongoExtractor(db *goMongo.Database, def pipeline.Definition) (*MongoExtractor, error) {
	if db == nil {
		return nil, &common.ExtractError{Reason: "database handle is nil"}
	}
	if def.Collection == "" {
		return nil, &common.ExtractError{Reason: "pipeline definition has no collection"}
	}
	if len(def.Stages) == 0 {
		return nil, &common.ExtractError{Reason: "pipeline definition has no stages"}
	}
	return newMongoExtractor(&mongoCollectionWrapper{db.Collection(def.Collection)}, def), nil
}

// Records runs the aggregation and yields one Record per result document.
// The sequence is single-pass: a second call yields an ExtractError.
func (e *MongoExtractor) Records(ctx context.Context) iter.Seq2[common.Record, error] {
	return func(yield func(common.Record, error) bool) {
		if !e.consumed.CompareAndSwap(false, true) {
			yield(nil, &common.ExtractError{Reason: "record source already consumed"})
			return
		}

		aggOptions := options.Aggregate().
			SetBatchSize(int32(e.batchSize)).
			SetAllowDiskUse(true)
		cursor, err := e.collection.Aggregate(ctx, e.definition.Stages, aggOptions)
		if err != nil {
			yield(nil, &common.DatabaseOperationError{Database: "MongoDB", Op: "aggregate", Reason: err.Error(), Err: err})
			return
		}
		// Close must run even when ctx was the reason iteration stopped.
		defer cursor.Close(context.WithoutCancel(ctx))

		for cursor.Next(ctx) {
			var doc bson.D
			if err := cursor.Decode(&doc); err != nil {
				yield(nil, &common.DataValidationError{
					Database: "MongoDB",
					Op:       "decode",
					Reason:   err.Error(),
					Err:      err,
				})
				return
			}
			if !yield(toRecord(doc), nil) {
				return
			}
		}

		if err := cursor.Err(); err != nil {
			yield(nil, &common.DatabaseOperationError{Database: "MongoDB", Op: "cursor", Reason: err.Error(), Err: err})
		}
	}
}

// Count returns the number of documents the aggregation would yield.
func (e *MongoExtractor) Count(ctx context.Context) (int64, error) {
	cursor, err := e.collection.Aggregate(ctx, e.definition.WithCount())
	if err != nil {
		return 0, &common.DatabaseOperationError{Database: "MongoDB", Op: "count", Reason: err.Error(), Err: err}
	}
	defer cursor.Close(context.WithoutCancel(ctx))

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return 0, &common.DatabaseOperationError{Database: "MongoDB", Op: "count", Reason: err.Error(), Err: err}
		}
		// $count emits nothing when no document matched.
		return 0, nil
	}
	var result struct {
		Count int64 `bson:"count"`
	}
	if err := cursor.Decode(&result); err != nil {
		return 0, &common.DataValidationError{Database: "MongoDB", Op: "decode count", Reason: err.Error(), Err: err}
	}
	return result.Count, nil
}

// Collection returns the name of the collection being aggregated.
func (e *MongoExtractor) Collection() string {
	return e.definition.Collection
}

func toRecord(doc bson.D) common.Record {
	rec := make(common.Record, len(doc))
	for i, e := range doc {
		rec[i] = common.Field{Key: e.Key, Value: e.Value}
	}
	return rec
}
