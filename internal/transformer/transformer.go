package transformer

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mongo2csv/internal/common"
)

// timeLayout is RFC 3339 with millisecond precision, the resolution of a BSON date.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// RowFormatter renders Records as CSV lines.
// Every field is wrapped in double quotes and any double quote inside the
// value is replaced by a single space. Quotes are never escaped.
type RowFormatter struct{}

// NewRowFormatter creates a new RowFormatter.
func NewRowFormatter() *RowFormatter {
	return &RowFormatter{}
}

// AppendHeader appends the header names joined by ',' and a trailing newline.
// Header names are written as is, without quoting.
func (f *RowFormatter) AppendHeader(dst []byte, header []string) []byte {
	for i, name := range header {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, name...)
	}
	return append(dst, '\n')
}

// AppendRow appends the line for rec to dst, one quoted field per header name.
// A header name missing from rec yields an empty field.
// On error dst is returned with a partial line; callers should discard it.
func (f *RowFormatter) AppendRow(dst []byte, rec common.Record, header []string) ([]byte, error) {
	for i, name := range header {
		if i > 0 {
			dst = append(dst, ',')
		}
		value, _ := rec.Lookup(name)
		text, err := Stringify(value)
		if err != nil {
			return dst, &common.TransformError{Field: name, Reason: err.Error(), Err: err}
		}
		dst = appendQuoted(dst, text)
	}
	return append(dst, '\n'), nil
}

// appendQuoted writes s between double quotes with every '"' replaced by ' '.
// '"' is ASCII so the byte-wise replacement never splits a UTF-8 sequence.
func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			c = ' '
		}
		dst = append(dst, c)
	}
	return append(dst, '"')
}

// Stringify converts a decoded BSON value to its CSV text.
func Stringify(value any) (string, error) {
	switch v := value.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case primitive.ObjectID:
		return v.Hex(), nil
	case primitive.Decimal128:
		return v.String(), nil
	case primitive.DateTime:
		return v.Time().UTC().Format(timeLayout), nil
	case time.Time:
		return v.UTC().Format(timeLayout), nil
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC().Format(timeLayout), nil
	case primitive.Binary:
		return base64.StdEncoding.EncodeToString(v.Data), nil
	case primitive.Symbol:
		return string(v), nil
	case primitive.JavaScript:
		return string(v), nil
	case bson.A:
		return joinValues([]any(v))
	case []any:
		return joinValues(v)
	case []string:
		return strings.Join(v, ","), nil
	case bson.D, bson.M, map[string]any:
		out, err := bson.MarshalExtJSON(v, false, false)
		if err != nil {
			return "", fmt.Errorf("marshal nested document: %w", err)
		}
		return string(out), nil
	default:
		// Numbers and Stringers.
		return cast.ToStringE(v)
	}
}

func joinValues(values []any) (string, error) {
	parts := make([]string, len(values))
	for i, elem := range values {
		s, err := Stringify(elem)
		if err != nil {
			return "", fmt.Errorf("array element %d: %w", i, err)
		}
		parts[i] = s
	}
	return strings.Join(parts, ","), nil
}
