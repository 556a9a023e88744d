package progress

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(step)
		return current
	}
}

func TestReporter(t *testing.T) {
	t.Run("NewReporter", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		reporter := NewReporter(logger, 0)

		assert.NotNil(t, reporter)
		assert.Equal(t, int64(DefaultInterval), reporter.interval)
	})

	t.Run("ObserveLogsAtEachInterval", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		reporter := NewReporter(logger, 1000)
		reporter.Start()

		for i := int64(1); i <= 2500; i++ {
			reporter.Observe(i)
		}

		entries := hook.AllEntries()
		require.Len(t, entries, 2)
		assert.Contains(t, entries[0].Message, "Processed 1,000 rows (")
		assert.Contains(t, entries[1].Message, "Processed 2,000 rows (")
		assert.Equal(t, int64(1000), entries[0].Data["rows"])
		assert.Equal(t, int64(2000), entries[1].Data["rows"])
		assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	})

	t.Run("ObserveBelowIntervalIsSilent", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		reporter := NewReporter(logger, 1000)

		for i := int64(0); i < 1000; i++ {
			reporter.Observe(i)
		}

		assert.Empty(t, hook.AllEntries())
		assert.Equal(t, int64(999), reporter.Status().Processed)
	})

	t.Run("Rate", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		reporter := NewReporter(logger, 1000)
		reporter.now = fixedClock(time.Unix(0, 0), time.Second)
		reporter.Start() // Clock at 1s.

		reporter.Observe(1000) // Clock at 2s: 1000 rows in 1s.

		require.Len(t, hook.AllEntries(), 1)
		assert.Equal(t, "Processed 1,000 rows (1,000 rows/sec)", hook.LastEntry().Message)
	})

	t.Run("Finish", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		reporter := NewReporter(logger, 1000)
		reporter.now = fixedClock(time.Unix(0, 0), 90*time.Second)
		reporter.Start()
		reporter.Observe(42)

		status := reporter.Finish()

		assert.Equal(t, int64(42), status.Processed)
		assert.Equal(t, "Finished writing 42 rows in 1m 30s", hook.LastEntry().Message)
	})
}
