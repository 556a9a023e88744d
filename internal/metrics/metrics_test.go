package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongo2csv/internal/common"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetricsWithRegistry(registry)

	assert.NotNil(t, metrics)
	assert.NotNil(t, metrics.rowsWritten)
	assert.NotNil(t, metrics.exportErrors)
	assert.NotNil(t, metrics.duration)
	assert.NotNil(t, metrics.rowsPerSecond)

	// Registering twice on the same registry must fail.
	assert.Panics(t, func() { NewMetricsWithRegistry(registry) })
	// Separate instances do not collide.
	assert.NotPanics(t, func() { NewMetrics(); NewMetrics() })
}

func TestMetricsMethods(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetricsWithRegistry(registry)

	collection := "assessments"
	database := "reports"

	metrics.AddRowsWritten(collection, database, 1000)
	metrics.AddRowsWritten(collection, database, 500)
	metrics.SetRowsPerSecond(collection, database, 250.5)
	metrics.IncrementErrors(StageLoad, "io_error")
	metrics.RecordExportDuration(collection, database, StatusSuccess, 6*time.Second)

	assert.Equal(t, float64(1500), testutil.ToFloat64(metrics.rowsWritten.WithLabelValues(collection, database)))
	assert.Equal(t, 250.5, testutil.ToFloat64(metrics.rowsPerSecond.WithLabelValues(collection, database)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.exportErrors.WithLabelValues(StageLoad, "io_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.duration))

	expected := `
# HELP mongo2csv_export_rows_written_total Number of CSV data rows handed to the output file
# TYPE mongo2csv_export_rows_written_total counter
mongo2csv_export_rows_written_total{collection="assessments",database="reports"} 1500
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "mongo2csv_export_rows_written_total"))
}

func TestMetrics_RecordError(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetricsWithRegistry(registry)

	metrics.RecordError(&common.FileIOError{Op: "write row", Reason: "disk full"})
	metrics.RecordError(fmt.Errorf("export: %w", &common.FileIOError{Op: "flush", Reason: "disk full"}))
	metrics.RecordError(&common.TransformError{Field: "score", Reason: "unsupported"})

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.exportErrors.WithLabelValues(StageLoad, "io_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.exportErrors.WithLabelValues(StageTransform, "transform_error")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		stage     string
		errorType string
	}{
		{name: "config", err: &common.ConfigError{Reason: "x"}, stage: StageConfig, errorType: "config_error"},
		{name: "parse", err: &common.ParseError{Reason: "x"}, stage: StageConfig, errorType: "parse_error"},
		{name: "connection", err: &common.DatabaseConnectionError{Reason: "x"}, stage: StageConnect, errorType: "connection_error"},
		{name: "query", err: &common.DatabaseOperationError{Op: "aggregate"}, stage: StageExtract, errorType: "query_error"},
		{name: "decode", err: &common.DataValidationError{Op: "decode"}, stage: StageExtract, errorType: "decode_error"},
		{name: "extract", err: &common.ExtractError{Reason: "x"}, stage: StageExtract, errorType: "extract_error"},
		{name: "transform", err: &common.TransformError{Reason: "x"}, stage: StageTransform, errorType: "transform_error"},
		{name: "io", err: &common.FileIOError{Reason: "x"}, stage: StageLoad, errorType: "io_error"},
		{name: "cancelled", err: fmt.Errorf("export cancelled: %w", context.Canceled), stage: StageExtract, errorType: "cancelled"},
		{name: "unknown", err: errors.New("boom"), stage: StageLoad, errorType: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, errorType := Classify(tt.err)
			assert.Equal(t, tt.stage, stage)
			assert.Equal(t, tt.errorType, errorType)
		})
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	metrics := NewMetrics()
	metrics.AddRowsWritten("assessments", "reports", 42)
	path := filepath.Join(t.TempDir(), "mongo2csv.prom")

	require.NoError(t, metrics.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `mongo2csv_export_rows_written_total{collection="assessments",database="reports"} 42`)
}

func TestMetrics_WriteTextfile_Error(t *testing.T) {
	metrics := NewMetrics()
	path := filepath.Join(t.TempDir(), "missing", "mongo2csv.prom")

	err := metrics.WriteTextfile(path)

	var ioErr *common.FileIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, path, ioErr.Path)
}
