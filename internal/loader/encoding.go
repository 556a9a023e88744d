package loader

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"mongo2csv/internal/common"
)

// NewEncodedSink returns a Sink that converts the UTF-8 rows it receives to
// the named character encoding before handing them to sink. Characters the
// encoding cannot represent are replaced by its substitute character.
// An empty name or "utf-8" returns sink unchanged.
func NewEncodedSink(sink Sink, name string) (Sink, error) {
	if name == "" {
		return sink, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, &common.ConfigError{Op: "output encoding", Reason: fmt.Sprintf("unknown encoding %q", name), Err: err}
	}
	if enc == unicode.UTF8 {
		return sink, nil
	}
	return &encodedSink{
		sink: sink,
		w:    transform.NewWriter(sink, encoding.ReplaceUnsupported(enc.NewEncoder())),
	}, nil
}

type encodedSink struct {
	sink Sink
	w    *transform.Writer
}

func (s *encodedSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

// Sync forwards to the wrapped sink. Rows are whole runes, so the encoder holds nothing back.
func (s *encodedSink) Sync() error {
	if sy, ok := s.sink.(syncer); ok {
		return sy.Sync()
	}
	return nil
}

func (s *encodedSink) Close() error {
	flushErr := s.w.Close()
	closeErr := s.sink.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (s *encodedSink) Name() string {
	if n, ok := s.sink.(namer); ok {
		return n.Name()
	}
	return ""
}
