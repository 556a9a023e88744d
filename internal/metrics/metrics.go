package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mongo2csv/internal/common"
)

const (
	namespace = "mongo2csv"
	subsystem = "export"
)

// Stage labels for errors_total.
const (
	StageConfig    = "config"
	StageConnect   = "connect"
	StageExtract   = "extract"
	StageTransform = "transform"
	StageLoad      = "load"
)

// Status labels for duration_seconds.
const (
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusCancelled = "cancelled"
)

// Metrics struct manages all Prometheus metrics.
type Metrics struct {
	rowsWritten   *prometheus.CounterVec
	exportErrors  *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	rowsPerSecond *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry creates a new Metrics instance registered in registry.
func NewMetricsWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{gatherer: registry}

	m.initMetricsWithRegistry(registry)
	return m
}

// initMetricsWithRegistry initializes metrics in the specified registry.
func (m *Metrics) initMetricsWithRegistry(registry prometheus.Registerer) {
	m.rowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_written_total",
			Help:      "Number of CSV data rows handed to the output file",
		},
		[]string{"collection", "database"},
	)

	m.exportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors that aborted an export",
		},
		[]string{"stage", "error_type"},
	)

	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Time taken to complete the export (seconds)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collection", "database", "status"},
	)

	m.rowsPerSecond = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_per_second",
			Help:      "Average number of rows written per second",
		},
		[]string{"collection", "database"},
	)

	registry.MustRegister(
		m.rowsWritten,
		m.exportErrors,
		m.duration,
		m.rowsPerSecond,
	)
}

// AddRowsWritten increments the number of rows written.
func (m *Metrics) AddRowsWritten(collection, database string, count int64) {
	m.rowsWritten.WithLabelValues(collection, database).Add(float64(count))
}

// IncrementErrors increments the error counter for stage and errorType.
func (m *Metrics) IncrementErrors(stage, errorType string) {
	m.exportErrors.WithLabelValues(stage, errorType).Inc()
}

// RecordError classifies err and increments the matching error counter.
func (m *Metrics) RecordError(err error) {
	stage, errorType := Classify(err)
	m.IncrementErrors(stage, errorType)
}

// RecordExportDuration records the time taken by one export.
func (m *Metrics) RecordExportDuration(collection, database, status string, duration time.Duration) {
	m.duration.WithLabelValues(collection, database, status).Observe(duration.Seconds())
}

// SetRowsPerSecond sets the average rows written per second.
func (m *Metrics) SetRowsPerSecond(collection, database string, rate float64) {
	m.rowsPerSecond.WithLabelValues(collection, database).Set(rate)
}

// WriteTextfile writes every registered metric to path in the text
// exposition format read by the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return &common.FileIOError{Path: path, Op: "write metrics textfile", Reason: err.Error(), Err: err}
	}
	return nil
}

// Classify maps an export error to its stage and error_type labels.
func Classify(err error) (stage, errorType string) {
	var (
		configErr     *common.ConfigError
		parseErr      *common.ParseError
		connErr       *common.DatabaseConnectionError
		opErr         *common.DatabaseOperationError
		validationErr *common.DataValidationError
		extractErr    *common.ExtractError
		transformErr  *common.TransformError
		ioErr         *common.FileIOError
	)
	// A failed connect may wrap the ping deadline; it is still a connect failure.
	switch {
	case errors.As(err, &connErr):
		return StageConnect, "connection_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StageExtract, "cancelled"
	case errors.As(err, &configErr):
		return StageConfig, "config_error"
	case errors.As(err, &parseErr):
		return StageConfig, "parse_error"
	case errors.As(err, &opErr):
		return StageExtract, "query_error"
	case errors.As(err, &validationErr):
		return StageExtract, "decode_error"
	case errors.As(err, &extractErr):
		return StageExtract, "extract_error"
	case errors.As(err, &transformErr):
		return StageTransform, "transform_error"
	case errors.As(err, &ioErr):
		return StageLoad, "io_error"
	default:
		return StageLoad, "unknown"
	}
}
