package packagefile

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Row is one record as scanned from a package table.
type Row map[string]any

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Text renders the column as a string. NULL and missing columns are "".
func (r Row) Text(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// Has reports whether the column is present and not NULL.
func (r Row) Has(col string) bool {
	v, ok := r[col]
	return ok && v != nil
}

// UUID parses a required GUID column.
func (r Row) UUID(col string) (uuid.UUID, error) {
	s := strings.TrimSpace(r.Text(col))
	if s == "" {
		return uuid.Nil, fmt.Errorf("%s is empty", col)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s is not a valid GUID: %q", col, s)
	}
	return id, nil
}

// OptionalUUID parses a nullable GUID column.
func (r Row) OptionalUUID(col string) (*uuid.UUID, error) {
	if strings.TrimSpace(r.Text(col)) == "" {
		return nil, nil
	}
	id, err := r.UUID(col)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	}
	return 0
}

func (r Row) Int(col string) int {
	return int(r.Int64(col))
}

func (r Row) OptionalInt(col string) *int {
	if !r.Has(col) {
		return nil
	}
	n := r.Int(col)
	return &n
}

func (r Row) OptionalFloat(col string) *float64 {
	var f float64
	switch v := r[col].(type) {
	case float64:
		f = v
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

// Time parses a nullable date or timestamp column. Unparseable text is nil.
func (r Row) Time(col string) *time.Time {
	switch v := r[col].(type) {
	case time.Time:
		t := v.UTC()
		return &t
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}

func (r Row) Bytes(col string) []byte {
	switch v := r[col].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}

// Canonical renders a value for checksumming. NULL is a single 0x00 byte,
// blobs are lowercase hex.
func Canonical(v any) string {
	switch val := v.(type) {
	case nil:
		return "\x00"
	case string:
		return val
	case []byte:
		return hex.EncodeToString(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}
