package store

import (
	"fmt"
	"time"
)

// sqliteTimeLayout is fixed width so stored values compare lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timeArg converts t to the representation the dialect stores.
func timeArg(dialect Dialect, t time.Time) any {
	t = t.UTC()
	if dialect == DialectSQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

// dbTime scans TIMESTAMPTZ values as well as SQLite's TEXT timestamps.
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func (t *dbTime) parse(value string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan time: unrecognised value %q", value)
}
