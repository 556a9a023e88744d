package transformer

import (
	"bytes"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"mongo2csv/internal/common"
)

// FuzzAppendRow checks the line shape for arbitrary field values.
func FuzzAppendRow(f *testing.F) {
	// Add seed corpus for basic types.
	f.Add("test string", int64(42), 3.14, true)
	f.Add(`He said "hi"`, int64(0), 0.0, false)
	f.Add(`""""`, int64(-1), -2.5, false)
	f.Add("a,b\nc", int64(1<<40), 1e21, true)
	f.Add("", int64(0), 0.0, false)
	f.Add("日本語 \"テスト\"", int64(7), 0.1, true)

	header := []string{"s", "i", "f", "b", "arr", "doc", "missing"}

	f.Fuzz(func(t *testing.T, inputStr string, inputInt int64, inputFloat float64, inputBool bool) {
		rec := common.Record{
			{Key: "s", Value: inputStr},
			{Key: "i", Value: inputInt},
			{Key: "f", Value: inputFloat},
			{Key: "b", Value: inputBool},
			{Key: "arr", Value: bson.A{inputStr, inputInt}},
			{Key: "doc", Value: bson.D{{Key: "s", Value: inputStr}}},
		}

		defer func() {
			if r := recover(); r != nil {
				t.Errorf("AppendRow panicked with input %q: %v", inputStr, r)
			}
		}()

		line, err := NewRowFormatter().AppendRow(nil, rec, header)
		if err != nil {
			// ExtJSON rejects invalid UTF-8; anything else is a bug.
			if !strings.Contains(err.Error(), "marshal nested document") {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}

		if !bytes.HasSuffix(line, []byte("\n")) {
			t.Errorf("line should end with a newline: %q", line)
		}
		// Only the wrapping quotes may remain.
		if got, want := bytes.Count(line, []byte(`"`)), 2*len(header); got != want {
			t.Errorf("expected %d quotes, got %d in %q", want, got, line)
		}
		if !bytes.HasPrefix(line, []byte(`"`)) {
			t.Errorf("line should start with a quote: %q", line)
		}
		if !bytes.HasSuffix(line, []byte(`,""`+"\n")) {
			t.Errorf("missing field should render empty: %q", line)
		}
	})
}
