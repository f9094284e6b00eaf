package schema

import (
	"fmt"
	"strings"
)

// ValidationError reports why a file's columns were rejected for a source
// type. It is raised once per upload, before any record is published.
type ValidationError struct {
	Source  SourceType
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf(
		"missing required %s columns: %s",
		e.Source, strings.Join(e.Missing, ", "),
	)
}

// ValidateColumns checks a file's column names against the descriptor for the
// declared source type. Matching is case-insensitive.
//
// Only PARCEL sources have mandatory columns (the two geometry fields); the
// returned error names exactly the ones that are absent. For every source
// type the match ratio between descriptor fields and observed columns is
// returned so callers can log it as a diagnostic.
func ValidateColumns(columns []string, st SourceType) (matched, total int, err error) {
	d, derr := ForSource(st)
	if derr != nil {
		return 0, 0, derr
	}

	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		seen[strings.ToUpper(strings.TrimSpace(c))] = true
	}

	for _, f := range d.Fields {
		if seen[strings.ToUpper(f.Name)] {
			matched++
		}
	}
	total = len(d.Fields)

	if st == SourceParcel {
		var missing []string
		for _, name := range d.Required() {
			if !seen[strings.ToUpper(name)] {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return matched, total, &ValidationError{Source: st, Missing: missing}
		}
	}

	return matched, total, nil
}
