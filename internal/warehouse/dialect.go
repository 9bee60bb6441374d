package warehouse

// Dialect holds the driver-specific filter on the JSON-wrapped NPI column.
// The NPI is always passed as the single bind parameter.
type Dialect struct {
	Name  string
	where string
}

func (d Dialect) Query(table string) string {
	return "SELECT * FROM " + table + " WHERE " + d.where
}

var (
	Snowflake = Dialect{Name: "snowflake", where: "NPI:value::string = ?"}
	Postgres  = Dialect{Name: "postgres", where: `("NPI"::jsonb ->> 'value') = $1`}
	SQLite    = Dialect{Name: "sqlite", where: "json_extract(NPI, '$.value') = ?"}
)
