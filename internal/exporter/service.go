package exporter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mongo2csv/internal/common"
	"mongo2csv/internal/loader"
	"mongo2csv/internal/metrics"
)

// Loader writes every record of a source to its destination.
type Loader interface {
	Load(ctx context.Context, source common.RecordSource) (loader.Result, error)
}

// Target names the data being exported, for logs and metric labels.
type Target struct {
	Database   string
	Collection string
}

// Summary describes one export run.
type Summary struct {
	Rows    int64
	Elapsed time.Duration
}

// Service handles the export of one aggregation to CSV.
type Service struct {
	source  common.RecordSource
	loader  Loader
	target  Target
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a new export service. m may be nil.
func NewService(source common.RecordSource, l Loader, target Target, logger logrus.FieldLogger, m *metrics.Metrics) *Service {
	return &Service{
		source:  source,
		loader:  l,
		target:  target,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Run executes the export and records its outcome.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	log := s.logger.WithFields(logrus.Fields{
		"database":   s.target.Database,
		"collection": s.target.Collection,
	})
	log.Info("Running query")

	start := s.now()
	result, err := s.loader.Load(ctx, s.source)
	summary := Summary{Rows: result.Rows, Elapsed: s.now().Sub(start)}

	s.record(summary, err)

	if err != nil {
		return summary, fmt.Errorf("export failed after %s rows: %w", common.FormatNumber(int(summary.Rows)), err)
	}
	log.WithField("rows", summary.Rows).Infof("Finished %s rows", common.FormatNumber(int(summary.Rows)))
	return summary, nil
}

func (s *Service) record(summary Summary, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.AddRowsWritten(s.target.Collection, s.target.Database, summary.Rows)
	if secs := summary.Elapsed.Seconds(); secs > 0 {
		s.metrics.SetRowsPerSecond(s.target.Collection, s.target.Database, float64(summary.Rows)/secs)
	}

	status := metrics.StatusSuccess
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = metrics.StatusCancelled
		s.metrics.RecordError(err)
	default:
		status = metrics.StatusFailure
		s.metrics.RecordError(err)
	}
	s.metrics.RecordExportDuration(s.target.Collection, s.target.Database, status, summary.Elapsed)
}
