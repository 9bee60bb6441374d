package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"npisearch/internal"
	"npisearch/internal/config"
	"npisearch/internal/delivery"
	"npisearch/internal/specialty"
	"npisearch/internal/storage"
	"npisearch/internal/util"
	"npisearch/internal/warehouse"
)

type fakeExecutor struct {
	table internal.RawTable
	err   error
	calls []string
}

func (f *fakeExecutor) Execute(_ context.Context, npi string) (internal.RawTable, error) {
	f.calls = append(f.calls, npi)
	return f.table, f.err
}

func seedSmokeWarehouse(t *testing.T, path string) {
	t.Helper()
	db, err := warehouse.OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
CREATE TABLE merged_provider (NPI TEXT, FIRST_NAME TEXT, LAST_NAME TEXT, SPECIALTIES TEXT, LOADED_AT TIMESTAMP);
INSERT INTO merged_provider VALUES
  ('{"value":"1033933064"}', '{"value":"Jane"}', '{"value":"Doe"}', '[{"value":"207Q00000X"}]', '2024-05-06 07:08:09'),
  ('{"value":"1033933064"}', '{"value":"Jane"}', '{"value":"Doe"}', '[{"value":"207Q00000X"}]', '2024-05-06 07:08:09'),
  ('{"value":"1033933064"}', '{"value":"Jane"}', '{"value":"Doe"}', '[{"value":"999999"}]', NULL),
  ('{"value":"1033933064"}', '{"value":"Jane"}', '{"value":"Doe"}', '{"value":""}', NULL);
`)
	require.NoError(t, err)
}

func writeSpecialtyTable(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{specialty.HeaderID, specialty.HeaderName}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"207Q00000X", "Family Medicine"}))
	require.NoError(t, f.SaveAs(path))
}

type smokeEnv struct {
	cfg     config.Config
	db      *storage.DB
	service *SearchService
}

func newSmokeEnv(t *testing.T) smokeEnv {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.Config{
		DefaultNPI:          config.DefaultNPI,
		SpecialtyTablePath:  filepath.Join(tmp, "Specialty table.xlsx"),
		OutputDir:           filepath.Join(tmp, "out"),
		WarehouseDriver:     "sqlite",
		WarehouseTable:      "merged_provider",
		WarehouseSQLitePath: filepath.Join(tmp, "warehouse.db"),
	}
	seedSmokeWarehouse(t, cfg.WarehouseSQLitePath)
	writeSpecialtyTable(t, cfg.SpecialtyTablePath)

	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	exec, err := warehouse.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	cache := specialty.NewCache(cfg.SpecialtyTablePath, nil)
	return smokeEnv{cfg: cfg, db: db, service: NewSearchService(exec, cache, delivery.LocalSink{}, db, nil, cfg)}
}

func TestSmokeDefaultNPIToXLSX(t *testing.T) {
	env := newSmokeEnv(t)

	res, err := env.service.Search(context.Background(), "  ", SearchOptions{Export: true})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultNPI, res.NPI)
	assert.True(t, res.UsedDefault)
	assert.Equal(t, StatusConnected, res.ConnectionStatus)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Family Medicine", util.DerefString(res.Records[0].SpecialtyDerived))
	assert.Equal(t, "999999", util.DerefString(res.Records[1].Specialties))
	assert.Nil(t, res.Records[1].SpecialtyDerived)
	assert.Equal(t, 4, res.Stats.RawRows)
	assert.Equal(t, 1, res.Stats.DroppedDupe)
	assert.Equal(t, 1, res.Stats.DroppedBlank)

	require.NotNil(t, res.Export)
	assert.Equal(t, filepath.Join(env.cfg.OutputDir, "1033933064.xlsx"), res.Export.Path)

	f, err := excelize.OpenFile(res.Export.Path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ExportHeaders, rows[0])
	assert.Equal(t, []string{"1033933064", "Jane", "Doe", "207Q00000X", "Family Medicine"}, rows[1])

	history, err := env.db.ListSearches(5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, internal.SearchOK, history[0].Status)
	assert.Equal(t, res.TraceID, history[0].TraceID)
	assert.Equal(t, 2, history[0].Records)
	assert.Equal(t, 1, history[0].Matched)
	assert.Equal(t, res.Export.Path, util.DerefString(history[0].ExportRef))
}

func TestSmokeNoResultsSkipsExport(t *testing.T) {
	env := newSmokeEnv(t)

	res, err := env.service.Search(context.Background(), "1999999999", SearchOptions{Export: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrNoResults))
	assert.Empty(t, res.ConnectionStatus)
	assert.Nil(t, res.Export)

	_, statErr := os.Stat(filepath.Join(env.cfg.OutputDir, "1999999999.xlsx"))
	assert.True(t, os.IsNotExist(statErr))

	history, err := env.db.ListSearches(5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, internal.SearchNoResults, history[0].Status)
	assert.NotNil(t, history[0].ErrorText)
}

func TestSmokeNoExportFlag(t *testing.T) {
	env := newSmokeEnv(t)

	res, err := env.service.Search(context.Background(), "1033933064", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, res.UsedDefault)
	assert.Nil(t, res.Export)
	_, statErr := os.Stat(filepath.Join(env.cfg.OutputDir, "1033933064.xlsx"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCheckReportsConnectionStatus(t *testing.T) {
	env := newSmokeEnv(t)
	status, err := env.service.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, status)

	exec := &fakeExecutor{err: &internal.QueryError{Driver: "fake", NPI: config.DefaultNPI, Err: internal.ErrNoResults}}
	svc := NewSearchService(exec, nil, nil, nil, nil, config.Config{DefaultNPI: config.DefaultNPI})
	status, err = svc.Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusConnectFailed, status)
	assert.Equal(t, []string{config.DefaultNPI}, exec.calls)
}

func TestSearchDefaultNPIWithoutRowsCouldNotConnect(t *testing.T) {
	exec := &fakeExecutor{err: &internal.QueryError{Driver: "fake", NPI: config.DefaultNPI, Err: internal.ErrNoResults}}
	svc := NewSearchService(exec, nil, nil, nil, nil, config.Config{})

	res, err := svc.Search(context.Background(), "", SearchOptions{Export: true})
	require.Error(t, err)
	assert.Equal(t, StatusConnectFailed, res.ConnectionStatus)
	assert.Equal(t, []string{config.DefaultNPI}, exec.calls)
}

func TestSearchSchemaMismatchProducesNoOutput(t *testing.T) {
	exec := &fakeExecutor{table: internal.RawTable{
		Columns: []internal.Column{{Name: "NPI"}, {Name: "FIRST_NAME"}},
		Rows:    [][]any{{"1", "Jane"}},
	}}
	out := t.TempDir()
	svc := NewSearchService(exec, nil, nil, nil, nil, config.Config{OutputDir: out})

	res, err := svc.Search(context.Background(), "1", SearchOptions{Export: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
	assert.Empty(t, res.Records)
	assert.Nil(t, res.Export)

	entries, readErr := os.ReadDir(out)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestSearchWithoutSpecialtyTableStillSucceeds(t *testing.T) {
	exec := &fakeExecutor{table: internal.RawTable{
		Columns: []internal.Column{{Name: "NPI"}, {Name: "FIRST_NAME"}, {Name: "LAST_NAME"}, {Name: "SPECIALTIES"}},
		Rows:    [][]any{{"1", "Jane", "Doe", `[{"value":"207Q00000X"}]`}},
	}}
	cache := specialty.NewCache(filepath.Join(t.TempDir(), "missing.xlsx"), nil)
	svc := NewSearchService(exec, cache, nil, nil, nil, config.Config{})

	res, err := svc.Search(context.Background(), "1", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.False(t, res.Records[0].Matched())
}
