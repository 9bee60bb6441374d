package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"npisearch/internal"
)

func TestStripTimezones(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	aware := time.Date(2023, 12, 31, 23, 30, 0, 500, tokyo)
	ptr := time.Date(2023, 6, 1, 8, 0, 0, 0, tokyo)
	naive := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	table := &internal.RawTable{
		Columns: []internal.Column{
			{Name: "A", DatabaseType: "timestamp_ltz"},
			{Name: "B", DatabaseType: "TIMESTAMPTZ"},
			{Name: "C", DatabaseType: "TIMESTAMP_NTZ"},
			{Name: "D", DatabaseType: "TEXT"},
		},
		Rows: [][]any{{aware, &ptr, naive, "2023-12-31T23:30:00+09:00"}},
	}

	StripTimezones(table)

	assert.Equal(t, "TIMESTAMP_NTZ", table.Columns[0].DatabaseType)
	assert.Equal(t, "TIMESTAMP", table.Columns[1].DatabaseType)
	assert.Equal(t, "TIMESTAMP_NTZ", table.Columns[2].DatabaseType)
	assert.Equal(t, "TEXT", table.Columns[3].DatabaseType)

	assert.Equal(t, time.Date(2023, 12, 31, 23, 30, 0, 500, time.UTC), table.Rows[0][0])
	assert.Equal(t, time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC), table.Rows[0][1])
	assert.Equal(t, naive, table.Rows[0][2])
	assert.Equal(t, "2023-12-31T23:30:00+09:00", table.Rows[0][3], "text is not reinterpreted")
}
