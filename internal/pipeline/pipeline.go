// Package pipeline defines the aggregation run against the source collection
// and the CSV header derived from its projection.
package pipeline

import (
	"os"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"mongo2csv/internal/common"
)

// DefaultCollection is the collection the built-in query reads.
const DefaultCollection = "assessments"

// Definition is an aggregation against one collection.
type Definition struct {
	Collection string
	Stages     mongo.Pipeline
}

// fileDefinition is the on-disk shape of a pipeline override file.
type fileDefinition struct {
	Collection string   `bson:"collection"`
	Pipeline   []bson.D `bson:"pipeline"`
}

// cutoff bounds the export to records created on or before this instant.
var cutoff = time.Date(2024, time.August, 26, 0, 0, 0, 0, time.UTC)

// Default returns the built-in participant export query.
func Default() Definition {
	match := bson.D{
		{Key: "module", Value: "nspc"},
		{Key: "type", Value: "nspc24"},
		{Key: "$expr", Value: bson.D{
			{Key: "$lte", Value: bson.A{
				bson.D{{Key: "$toDate", Value: "$c_at"}},
				cutoff,
			}},
		}},
	}
	project := bson.D{
		{Key: "_id", Value: "$_id"},
		{Key: "sName", Value: "$participant.profile.name"},
		{Key: "sEmail", Value: "$participant.email"},
		{Key: "sPhone", Value: "$participant.profile.phone"},
		{Key: "sAge", Value: "$participant.profile.age"},
		{Key: "sLang", Value: "$participant.quizPreferredLanguage"},
		{Key: "institutionName", Value: "$participant.institutionName"},
		{Key: "gender", Value: "$participant.profile.gender"},
		{Key: "class", Value: "$participant.class"},
		{Key: "registrationType", Value: "$participant.registrationType"},
		{Key: "score", Value: "$result.score"},
		{Key: "city", Value: "$participant.location.city"},
		{Key: "state", Value: "$participant.location.state"},
		{Key: "planted_10_seeds", Value: "$participant.planted_10_seeds"},
	}
	return Definition{
		Collection: DefaultCollection,
		Stages: mongo.Pipeline{
			{{Key: "$match", Value: match}},
			{{Key: "$project", Value: project}},
		},
	}
}

// Load reads a definition from an Extended JSON file of the form
// {"collection": "...", "pipeline": [...]}.
func Load(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, &common.FileIOError{Path: path, Op: "read pipeline file", Reason: err.Error(), Err: err}
	}
	return Parse(path, data)
}

// Parse decodes a definition from Extended JSON. source names the input in errors.
func Parse(source string, data []byte) (Definition, error) {
	var fd fileDefinition
	if err := bson.UnmarshalExtJSON(data, false, &fd); err != nil {
		return Definition{}, &common.ParseError{Source: source, Op: "bson unmarshalextjson", Reason: err.Error(), Err: err}
	}
	if len(fd.Pipeline) == 0 {
		return Definition{}, &common.ParseError{Source: source, Op: "validate", Reason: "pipeline has no stages"}
	}
	def := Definition{Collection: fd.Collection, Stages: mongo.Pipeline(fd.Pipeline)}
	if _, err := def.Header(); err != nil {
		return Definition{}, &common.ParseError{Source: source, Op: "validate", Reason: err.Error(), Err: err}
	}
	return def, nil
}

// WithCollection returns a copy of d reading from collection, unless collection is empty.
func (d Definition) WithCollection(collection string) Definition {
	if collection != "" {
		d.Collection = collection
	}
	return d
}

// Header returns the CSV columns: the keys of the last $project stage, in order.
func (d Definition) Header() ([]string, error) {
	for i := len(d.Stages) - 1; i >= 0; i-- {
		for _, e := range d.Stages[i] {
			if e.Key != "$project" {
				continue
			}
			keys := projectionKeys(e.Value)
			if len(keys) == 0 {
				return nil, &common.ConfigError{Op: "derive header", Reason: "$project stage has no fields"}
			}
			return keys, nil
		}
	}
	return nil, &common.ConfigError{Op: "derive header", Reason: "pipeline has no $project stage"}
}

// WithCount returns the stages followed by a $count stage producing a "count" field.
func (d Definition) WithCount() mongo.Pipeline {
	stages := make(mongo.Pipeline, 0, len(d.Stages)+1)
	stages = append(stages, d.Stages...)
	return append(stages, bson.D{{Key: "$count", Value: "count"}})
}

func projectionKeys(spec any) []string {
	switch v := spec.(type) {
	case bson.D:
		keys := make([]string, 0, len(v))
		for _, e := range v {
			keys = append(keys, e.Key)
		}
		return keys
	case bson.M:
		// Map order is lost; fall back to a stable order.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	default:
		return nil
	}
}

// Resolve returns the definition loaded from path, or Default when path is
// empty, reading from collection when it is set.
func Resolve(path, collection string) (Definition, error) {
	def := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Definition{}, err
		}
		def = loaded
	}
	def = def.WithCollection(collection)
	if def.Collection == "" {
		return Definition{}, &common.ConfigError{Op: "resolve pipeline", Reason: "no collection set in the pipeline file or --mongo-collection"}
	}
	return def, nil
}
