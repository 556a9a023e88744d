package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"mongo2csv/internal/common"
)

func TestDefault_Header(t *testing.T) {
	def := Default()

	header, err := def.Header()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"_id", "sName", "sEmail", "sPhone", "sAge", "sLang", "institutionName",
		"gender", "class", "registrationType", "score", "city", "state", "planted_10_seeds",
	}, header)
	assert.Equal(t, DefaultCollection, def.Collection)
}

func TestDefault_MatchStage(t *testing.T) {
	def := Default()
	require.Len(t, def.Stages, 2)

	match, ok := def.Stages[0].Map()["$match"].(bson.D)
	require.True(t, ok, "first stage should be $match")
	fields := match.Map()
	assert.Equal(t, "nspc", fields["module"])
	assert.Equal(t, "nspc24", fields["type"])

	expr := fields["$expr"].(bson.D).Map()["$lte"].(bson.A)
	require.Len(t, expr, 2)
	assert.Equal(t, bson.D{{Key: "$toDate", Value: "$c_at"}}, expr[0])
	assert.Equal(t, time.Date(2024, time.August, 26, 0, 0, 0, 0, time.UTC), expr[1])
}

func TestDefinition_WithCollection(t *testing.T) {
	def := Default()
	assert.Equal(t, "archive", def.WithCollection("archive").Collection)
	assert.Equal(t, DefaultCollection, def.WithCollection("").Collection)
	assert.Equal(t, DefaultCollection, def.Collection, "original should be unchanged")
}

func TestDefinition_WithCount(t *testing.T) {
	def := Default()
	counted := def.WithCount()

	require.Len(t, counted, len(def.Stages)+1)
	assert.Equal(t, bson.D{{Key: "$count", Value: "count"}}, counted[len(counted)-1])
	assert.Len(t, def.Stages, 2, "WithCount must not grow the original stages")
}

func TestDefinition_Header_UsesLastProject(t *testing.T) {
	def := Definition{Stages: []bson.D{
		{{Key: "$project", Value: bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 1}}}},
		{{Key: "$match", Value: bson.D{{Key: "a", Value: 1}}}},
		{{Key: "$project", Value: bson.D{{Key: "z", Value: "$a"}, {Key: "y", Value: "$b"}}}},
	}}

	header, err := def.Header()
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "y"}, header)
}

func TestDefinition_Header_MapProjectionIsSorted(t *testing.T) {
	def := Definition{Stages: []bson.D{
		{{Key: "$project", Value: bson.M{"b": 1, "a": 1, "c": 1}}},
	}}

	header, err := def.Header()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, header)
}

func TestDefinition_Header_Errors(t *testing.T) {
	_, err := Definition{Stages: []bson.D{{{Key: "$match", Value: bson.D{}}}}}.Header()
	var cfgErr *common.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "no $project stage")

	_, err = Definition{Stages: []bson.D{{{Key: "$project", Value: bson.D{}}}}}.Header()
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "no fields")
}

func TestParse(t *testing.T) {
	data := []byte(`{
		"collection": "assessments",
		"pipeline": [
			{"$match": {"c_at": {"$lte": {"$date": "2024-08-26T00:00:00Z"}}}},
			{"$project": {"_id": "$_id", "score": "$result.score", "city": "$participant.location.city"}}
		]
	}`)

	def, err := Parse("inline", data)
	require.NoError(t, err)
	assert.Equal(t, "assessments", def.Collection)
	require.Len(t, def.Stages, 2)

	header, err := def.Header()
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "score", "city"}, header, "header should keep file order")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{name: "invalid json", input: `{"pipeline": [`, reason: ""},
		{name: "no stages", input: `{"collection": "c", "pipeline": []}`, reason: "pipeline has no stages"},
		{name: "no projection", input: `{"pipeline": [{"$match": {"a": 1}}]}`, reason: "no $project stage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.json", []byte(tt.input))
			require.Error(t, err)
			var parseErr *common.ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, "test.json", parseErr.Source)
			if tt.reason != "" {
				assert.Contains(t, parseErr.Reason, tt.reason)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pipeline": [{"$project": {"name": 1}}]}`), 0o600))

	def, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, def.Collection)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	var ioErr *common.FileIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "read pipeline file", ioErr.Op)
}

func TestResolve(t *testing.T) {
	def, err := Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), def)

	def, err = Resolve("", "archive")
	require.NoError(t, err)
	assert.Equal(t, "archive", def.Collection)

	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pipeline": [{"$project": {"name": 1}}]}`), 0o600))

	_, err = Resolve(path, "")
	var cfgErr *common.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "no collection")

	def, err = Resolve(path, "people")
	require.NoError(t, err)
	assert.Equal(t, "people", def.Collection)
	header, err := def.Header()
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, header)
}
