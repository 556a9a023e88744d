package common

import (
	"context"
	"iter"
)

// RecordSource produces a lazy, finite, single-pass sequence of records.
type RecordSource interface {
	// Records yields records in source order. Iteration stops at the first error,
	// which is yielded with a nil Record.
	Records(ctx context.Context) iter.Seq2[Record, error]
}
