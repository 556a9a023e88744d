package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"mongo2csv/internal/common"
	"mongo2csv/internal/progress"
	"mongo2csv/internal/transformer"
)

// DefaultBufferSize is the number of bytes buffered before rows are handed to the sink.
const DefaultBufferSize = 64 * 1024

// ErrAlreadyUsed is returned when Load is called more than once.
var ErrAlreadyUsed = errors.New("csv loader has already been used")

// State is the lifecycle position of a CSVLoader.
type State int32

const (
	StateNotStarted State = iota
	StateHeaderWritten
	StateWritingRows
	StateFlushing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateHeaderWritten:
		return "header written"
	case StateWritingRows:
		return "writing rows"
	case StateFlushing:
		return "flushing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Sink is the destination of the CSV bytes. If it also implements
// Sync() error, Sync is called after the final flush.
type Sink interface {
	io.Writer
	io.Closer
}

type syncer interface {
	Sync() error
}

type namer interface {
	Name() string
}

// FileSink writes to a file on the local filesystem.
type FileSink struct {
	*os.File
}

// CreateFileSink creates or truncates path.
func CreateFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &common.FileIOError{Path: path, Op: "create output file", Reason: err.Error(), Err: err}
	}
	return &FileSink{File: f}, nil
}

// Result describes a finished or aborted Load.
type Result struct {
	// Rows is the number of data rows the sink accepted in full, header excluded.
	// Rows still buffered when the sink failed are not counted.
	Rows int64
}

// Option configures a CSVLoader.
type Option func(*CSVLoader)

// WithLogger sets the logger for lifecycle messages.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(l *CSVLoader) {
		l.logger = logger
	}
}

// WithProgress sets the progress reporter.
func WithProgress(reporter *progress.Reporter) Option {
	return func(l *CSVLoader) {
		l.progress = reporter
	}
}

// WithBufferSize sets the write buffer size. Zero hands every row to the sink as it is produced.
func WithBufferSize(size int) Option {
	return func(l *CSVLoader) {
		if size >= 0 {
			l.bufferSize = size
		}
	}
}

// CSVLoader streams Records from a source into a CSV sink.
// A CSVLoader is single use.
type CSVLoader struct {
	sink       Sink
	header     []string
	formatter  *transformer.RowFormatter
	logger     logrus.FieldLogger
	progress   *progress.Reporter
	bufferSize int
	used       atomic.Bool
	state      atomic.Int32
}

// NewCSVLoader creates a loader writing header and then one line per record to sink.
func NewCSVLoader(sink Sink, header []string, opts ...Option) *CSVLoader {
	l := &CSVLoader{
		sink:       sink,
		header:     header,
		formatter:  transformer.NewRowFormatter(),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		l.logger = discard
	}
	if l.progress == nil {
		l.progress = progress.NewReporter(l.logger, progress.DefaultInterval)
	}
	return l
}

// State returns the current lifecycle state.
func (l *CSVLoader) State() State {
	return State(l.state.Load())
}

func (l *CSVLoader) setState(s State) {
	l.state.Store(int32(s))
}

// Load writes the header and every record yielded by source, in order, then
// flushes, syncs and closes the sink. On any failure the sink is closed, the
// loader ends in StateFailed and the rows already handed over stay in the sink.
func (l *CSVLoader) Load(ctx context.Context, source common.RecordSource) (Result, error) {
	if !l.used.CompareAndSwap(false, true) {
		return Result{}, fmt.Errorf("%w (state: %s)", ErrAlreadyUsed, l.State())
	}

	w := newRowWriter(l.sink, l.bufferSize)
	var rows int64
	var headerLines int64
	if len(l.header) > 0 {
		headerLines = 1
	}
	written := func() int64 {
		return max(w.committed-headerLines, 0)
	}

	// fail closes the sink and moves to StateFailed. Rows still buffered are
	// handed over first unless the sink itself is what failed.
	fail := func(err error, flush bool) (Result, error) {
		if flush {
			if ferr := w.flush(); ferr != nil {
				l.logger.WithError(ferr).Warn("Failed to flush buffered rows")
			}
		}
		if cerr := l.sink.Close(); cerr != nil {
			l.logger.WithError(cerr).Warn("Failed to close output")
		}
		l.setState(StateFailed)
		return Result{Rows: written()}, err
	}

	if len(l.header) > 0 {
		l.logger.Info("Writing headers")
		if err := w.writeRow(l.formatter.AppendHeader(nil, l.header)); err != nil {
			return fail(l.sinkError("write header", err), false)
		}
		l.setState(StateHeaderWritten)
	}

	l.progress.Start()
	line := make([]byte, 0, 512)
	for rec, err := range source.Records(ctx) {
		if err != nil {
			return fail(err, true)
		}
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("export cancelled after %d rows: %w", rows, err), true)
		}
		line, err = l.formatter.AppendRow(line[:0], rec, l.header)
		if err != nil {
			return fail(err, true)
		}
		if err := w.writeRow(line); err != nil {
			return fail(l.sinkError("write row", err), false)
		}
		rows++
		l.setState(StateWritingRows)
		l.progress.Observe(rows)
	}
	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("export cancelled after %d rows: %w", rows, err), true)
	}

	l.setState(StateFlushing)
	if err := w.flush(); err != nil {
		return fail(l.sinkError("flush", err), false)
	}
	if s, ok := l.sink.(syncer); ok {
		if err := s.Sync(); err != nil {
			return fail(l.sinkError("sync", err), false)
		}
	}
	if err := l.sink.Close(); err != nil {
		l.setState(StateFailed)
		return Result{Rows: written()}, l.sinkError("close", err)
	}

	l.setState(StateDone)
	l.progress.Finish()
	return Result{Rows: written()}, nil
}

func (l *CSVLoader) sinkError(op string, err error) error {
	var path string
	if n, ok := l.sink.(namer); ok {
		path = n.Name()
	}
	return &common.FileIOError{Path: path, Op: op, Reason: err.Error(), Err: err}
}

// rowWriter buffers whole rows and only ever hands the sink complete rows.
// committed counts the rows the sink accepted in full.
type rowWriter struct {
	w         io.Writer
	buf       []byte
	ends      []int // offset just past each buffered row
	size      int
	committed int64
}

func newRowWriter(w io.Writer, size int) *rowWriter {
	return &rowWriter{w: w, buf: make([]byte, 0, size), size: size}
}

func (rw *rowWriter) writeRow(row []byte) error {
	if len(rw.buf) > 0 && len(rw.buf)+len(row) > rw.size {
		if err := rw.flush(); err != nil {
			return err
		}
	}
	if len(row) >= rw.size {
		n, err := rw.write(row)
		if n == len(row) && err == nil {
			rw.committed++
		}
		return err
	}
	rw.buf = append(rw.buf, row...)
	rw.ends = append(rw.ends, len(rw.buf))
	return nil
}

func (rw *rowWriter) flush() error {
	if len(rw.buf) == 0 {
		return nil
	}
	n, err := rw.write(rw.buf)
	for _, end := range rw.ends {
		if end > n {
			break
		}
		rw.committed++
	}
	rw.buf = rw.buf[:0]
	rw.ends = rw.ends[:0]
	return err
}

func (rw *rowWriter) write(p []byte) (int, error) {
	n, err := rw.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}
