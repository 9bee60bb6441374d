package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"

	"npisearch/internal/config"
	"npisearch/internal/registry"
)

// Open builds the Executor selected by WAREHOUSE_DRIVER.
func Open(ctx context.Context, cfg config.Config) (Executor, error) {
	switch cfg.WarehouseDriver {
	case "snowflake":
		db, err := OpenSnowflake(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return newSQLExecutorOrClose(db, Snowflake, cfg.WarehouseTable)
	case "postgres":
		db, err := OpenPostgres(cfg)
		if err != nil {
			return nil, err
		}
		return newSQLExecutorOrClose(db, Postgres, cfg.WarehouseTable)
	case "sqlite":
		db, err := OpenSQLite(cfg.WarehouseSQLitePath)
		if err != nil {
			return nil, err
		}
		return newSQLExecutorOrClose(db, SQLite, cfg.WarehouseTable)
	case "registry":
		return registry.NewClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported warehouse driver: %s", cfg.WarehouseDriver)
	}
}

func OpenPostgres(cfg config.Config) (*sql.DB, error) {
	if err := cfg.Require("POSTGRES_DSN", cfg.PostgresDSN); err != nil {
		return nil, err
	}
	return sql.Open("pgx", cfg.PostgresDSN)
}

func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", path)
}

func newSQLExecutorOrClose(db *sql.DB, dialect Dialect, table string) (Executor, error) {
	exec, err := NewSQLExecutor(db, dialect, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return exec, nil
}
