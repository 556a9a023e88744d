package progress

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"mongo2csv/internal/common"
)

// DefaultInterval is the number of rows between progress lines.
const DefaultInterval = 1000

// Status contains information about the export progress.
type Status struct {
	Processed int64
	Rate      float64
	Elapsed   time.Duration
}

// Reporter logs a progress line every interval rows.
// It only observes; it never affects what is written.
type Reporter struct {
	logger    logrus.FieldLogger
	interval  int64
	processed atomic.Int64
	startTime time.Time
	now       func() time.Time
}

// NewReporter creates a new progress reporter.
func NewReporter(logger logrus.FieldLogger, interval int64) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		logger:    logger,
		interval:  interval,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Start resets the clock used for rate calculation.
func (r *Reporter) Start() {
	r.startTime = r.now()
	r.processed.Store(0)
}

// Observe records that processed rows have been written in total.
// A line is logged each time processed reaches a multiple of the interval.
func (r *Reporter) Observe(processed int64) {
	r.processed.Store(processed)
	if processed == 0 || processed%r.interval != 0 {
		return
	}
	status := r.Status()
	r.logger.WithFields(logrus.Fields{
		"rows": status.Processed,
		"rate": int64(status.Rate),
	}).Infof("Processed %s rows (%s rows/sec)",
		common.FormatNumber(int(status.Processed)),
		common.FormatNumber(int(status.Rate)),
	)
}

// Status returns the current progress status.
func (r *Reporter) Status() Status {
	processed := r.processed.Load()
	elapsed := r.now().Sub(r.startTime)

	var rate float64
	if elapsed > 0 {
		rate = float64(processed) / elapsed.Seconds()
	}
	return Status{
		Processed: processed,
		Rate:      rate,
		Elapsed:   elapsed,
	}
}

// Finish logs the final row count.
func (r *Reporter) Finish() Status {
	status := r.Status()
	r.logger.WithFields(logrus.Fields{
		"rows":    status.Processed,
		"elapsed": status.Elapsed.String(),
	}).Infof("Finished writing %s rows in %s",
		common.FormatNumber(int(status.Processed)),
		common.FormatDuration(status.Elapsed),
	)
	return status
}
