package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"npisearch/internal"
)

// Metadata keys written by the search service.
const (
	MetaSpecialtySource  = "specialty.source"
	MetaSpecialtyEntries = "specialty.entries"
	MetaSpecialtyLoaded  = "specialty.loadedAt"
	MetaSpecialtyError   = "specialty.error"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS searches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  npi TEXT NOT NULL,
  usedDefault INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  rawRows INTEGER NOT NULL DEFAULT 0,
  records INTEGER NOT NULL DEFAULT 0,
  matched INTEGER NOT NULL DEFAULT 0,
  exportRef TEXT,
  errorText TEXT,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_searches_npi ON searches(npi);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) InsertSearch(row internal.SearchRow) (int64, error) {
	timings := row.TimingsMs
	if timings == nil {
		timings = map[string]float64{}
	}
	timingsJSON, _ := json.Marshal(timings)

	result, err := d.conn.Exec(`
INSERT INTO searches (traceId, npi, usedDefault, status, rawRows, records, matched, exportRef, errorText, timingsJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, row.TraceID, row.NPI, row.UsedDefault, string(row.Status), row.RawRows, row.Records, row.Matched, row.ExportRef, row.ErrorText, string(timingsJSON))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListSearches returns the most recent searches first.
func (d *DB) ListSearches(limit int) ([]internal.SearchRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
SELECT id, traceId, npi, usedDefault, status, rawRows, records, matched, exportRef, errorText, timingsJson, createdAt
FROM searches ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SearchRow
	for rows.Next() {
		var row internal.SearchRow
		var status, timingsJSON string
		if err := rows.Scan(
			&row.ID, &row.TraceID, &row.NPI, &row.UsedDefault, &status, &row.RawRows, &row.Records, &row.Matched,
			&row.ExportRef, &row.ErrorText, &timingsJSON, &row.CreatedAt,
		); err != nil {
			return nil, err
		}
		row.Status = internal.SearchStatus(status)
		_ = json.Unmarshal([]byte(timingsJSON), &row.TimingsMs)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
