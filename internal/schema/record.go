package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one validated row, keyed by canonical field name. Absent and
// empty source values are simply not present, so JSON serialization never
// carries nulls.
type Record map[string]any

// BuildRecord validates and coerces one raw row against the descriptor for
// the given source type.
//
// Raw values are trimmed; an empty string is treated as absent rather than
// as an empty value, so downstream consumers never see the empty-string /
// null ambiguity. Columns not in the descriptor are dropped. Column names
// match case-insensitively and the canonical descriptor spelling is used in
// the result. Numeric fields that fail to parse make the whole row invalid.
func BuildRecord(st SourceType, raw map[string]string) (Record, error) {
	d, err := ForSource(st)
	if err != nil {
		return nil, err
	}

	rec := make(Record, len(raw))
	for col, val := range raw {
		f, ok := d.field(col)
		if !ok {
			continue
		}

		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}

		switch f.Kind {
		case KindFloat:
			n, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("field %s: %q is not a number", f.Name, val)
			}
			rec[f.Name] = n
		case KindInt:
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("field %s: %q is not an integer", f.Name, val)
			}
			rec[f.Name] = n
		default:
			rec[f.Name] = val
		}
	}

	for _, name := range d.Required() {
		if _, ok := rec[name]; !ok {
			return nil, fmt.Errorf("field %s is required for %s records", name, st)
		}
	}

	return rec, nil
}
