package internal

import (
	"errors"
	"fmt"
)

const (
	ColumnNPI              = "NPI"
	ColumnFirstName        = "FIRST_NAME"
	ColumnLastName         = "LAST_NAME"
	ColumnSpecialties      = "SPECIALTIES"
	ColumnSpecialtyDerived = "SPECIALTY_DERIVED"
)

// BaseColumns are the source columns kept in a provider record, in output order.
var BaseColumns = []string{ColumnNPI, ColumnFirstName, ColumnLastName, ColumnSpecialties}

// ErrNoResults is wrapped in a QueryError when the source has no row for the NPI.
var ErrNoResults = errors.New("no results")

type Column struct {
	Name         string
	DatabaseType string
}

// RawTable is one query result as handed over by an executor. Row values are
// whatever the driver produced (string, []byte, int64, float64, bool,
// time.Time or nil).
type RawTable struct {
	Columns []Column
	Rows    [][]any
}

func (t RawTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ProviderRecord is one normalized output row. Nil means null.
type ProviderRecord struct {
	NPI              *string `json:"NPI"`
	FirstName        *string `json:"FIRST_NAME"`
	LastName         *string `json:"LAST_NAME"`
	Specialties      *string `json:"SPECIALTIES"`
	SpecialtyDerived *string `json:"SPECIALTY_DERIVED"`
}

// Matched reports whether the specialty code resolved to a name.
func (r ProviderRecord) Matched() bool {
	return r.SpecialtyDerived != nil
}

type QueryError struct {
	Driver string
	NPI    string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query for npi=%s: %v", e.Driver, e.NPI, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

type SearchStatus string

const (
	SearchOK        SearchStatus = "OK"
	SearchNoResults SearchStatus = "NO_RESULTS"
	SearchFailed    SearchStatus = "FAILED"
)

type SearchRow struct {
	ID          int
	TraceID     string
	NPI         string
	UsedDefault bool
	Status      SearchStatus
	RawRows     int
	Records     int
	Matched     int
	ExportRef   *string
	ErrorText   *string
	TimingsMs   map[string]float64
	CreatedAt   string
}
