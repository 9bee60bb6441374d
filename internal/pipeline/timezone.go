package pipeline

import (
	"strings"
	"time"

	"npisearch/internal"
)

// naiveTypes maps zone-aware database types to their zone-less counterpart.
var naiveTypes = map[string]string{
	"TIMESTAMP_TZ":                   "TIMESTAMP_NTZ",
	"TIMESTAMP_LTZ":                  "TIMESTAMP_NTZ",
	"TIMESTAMPTZ":                    "TIMESTAMP",
	"TIMESTAMP WITH TIME ZONE":       "TIMESTAMP",
	"TIMESTAMP WITH LOCAL TIME ZONE": "TIMESTAMP",
	"DATETIMETZ":                     "DATETIME",
	"DATETIMEOFFSET":                 "DATETIME2",
}

// StripTimezones removes zone information in place: zone-aware column types
// are re-declared as their naive form and every time.Time value keeps its
// wall clock but loses its zone. A naive time is represented in UTC.
func StripTimezones(table *internal.RawTable) {
	for i, col := range table.Columns {
		if naive, ok := naiveTypes[strings.ToUpper(strings.TrimSpace(col.DatabaseType))]; ok {
			table.Columns[i].DatabaseType = naive
		}
	}
	for _, row := range table.Rows {
		for j, v := range row {
			switch t := v.(type) {
			case time.Time:
				row[j] = stripZone(t)
			case *time.Time:
				if t != nil {
					row[j] = stripZone(*t)
				}
			}
		}
	}
}

func stripZone(t time.Time) time.Time {
	if t.Location() == time.UTC {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
