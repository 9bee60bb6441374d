// Package warehouse runs the provider lookup query against the configured
// source and returns the raw result table.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"npisearch/internal"
)

var tracer = otel.Tracer("npisearch/warehouse")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

// Executor fetches every source row for one NPI. Failures, including an empty
// result, come back as *internal.QueryError.
type Executor interface {
	Execute(ctx context.Context, npi string) (internal.RawTable, error)
	Close() error
}

// SQLExecutor runs the dialect's lookup query through database/sql.
type SQLExecutor struct {
	db      *sql.DB
	dialect Dialect
	query   string
}

func NewSQLExecutor(db *sql.DB, dialect Dialect, table string) (*SQLExecutor, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid warehouse table name: %q", table)
	}
	return &SQLExecutor{db: db, dialect: dialect, query: dialect.Query(table)}, nil
}

func (e *SQLExecutor) Close() error {
	return e.db.Close()
}

func (e *SQLExecutor) Execute(ctx context.Context, npi string) (internal.RawTable, error) {
	ctx, span := tracer.Start(ctx, "warehouse.execute")
	defer span.End()
	span.SetAttributes(attribute.String("warehouse.driver", e.dialect.Name), attribute.String("npi", npi))

	table, err := e.execute(ctx, npi)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return internal.RawTable{}, &internal.QueryError{Driver: e.dialect.Name, NPI: npi, Err: err}
	}
	span.SetAttributes(attribute.Int("warehouse.rows", len(table.Rows)))
	return table, nil
}

func (e *SQLExecutor) execute(ctx context.Context, npi string) (internal.RawTable, error) {
	rows, err := e.db.QueryContext(ctx, e.query, npi)
	if err != nil {
		return internal.RawTable{}, err
	}
	defer rows.Close()

	table, err := scanTable(rows)
	if err != nil {
		return internal.RawTable{}, err
	}
	if len(table.Rows) == 0 {
		return internal.RawTable{}, internal.ErrNoResults
	}
	return table, nil
}

func scanTable(rows *sql.Rows) (internal.RawTable, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return internal.RawTable{}, err
	}

	table := internal.RawTable{Columns: make([]internal.Column, len(types))}
	for i, ct := range types {
		table.Columns[i] = internal.Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		values := make([]any, len(types))
		dest := make([]any, len(types))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return internal.RawTable{}, err
		}
		table.Rows = append(table.Rows, values)
	}
	return table, rows.Err()
}
