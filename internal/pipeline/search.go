package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"npisearch/internal"
	"npisearch/internal/config"
	"npisearch/internal/delivery"
	"npisearch/internal/logger"
	"npisearch/internal/specialty"
	"npisearch/internal/storage"
	"npisearch/internal/util"
)

const (
	StatusConnected     = "connection was successful"
	StatusConnectFailed = "couldn't connect"
)

var tracer = otel.Tracer("npisearch/pipeline")

// QueryExecutor fetches the raw rows for one NPI.
type QueryExecutor interface {
	Execute(ctx context.Context, npi string) (internal.RawTable, error)
}

// MappingSource hands out the current specialty mapping.
type MappingSource interface {
	Get() specialty.Mapping
}

type SearchOptions struct {
	Export bool
}

type SearchResult struct {
	TraceID     string
	NPI         string
	UsedDefault bool
	Records     []internal.ProviderRecord
	Stats       NormalizeStats
	Export      *delivery.Location

	// ConnectionStatus is set only when the default NPI was searched.
	ConnectionStatus string
}

type SearchService struct {
	exec  QueryExecutor
	specs MappingSource
	sink  delivery.Sink
	db    *storage.DB
	log   logger.Logger
	cfg   config.Config
}

// NewSearchService wires the search collaborators. db may be nil, in which
// case no history is kept.
func NewSearchService(exec QueryExecutor, specs MappingSource, sink delivery.Sink, db *storage.DB, log logger.Logger, cfg config.Config) *SearchService {
	if log == nil {
		log = logger.Nop()
	}
	if sink == nil {
		sink = delivery.LocalSink{}
	}
	return &SearchService{exec: exec, specs: specs, sink: sink, db: db, log: log, cfg: cfg}
}

// Search runs one lookup end to end: query, normalize, and export when there
// is at least one record. A blank input searches the default NPI.
func (s *SearchService) Search(ctx context.Context, input string, opts SearchOptions) (SearchResult, error) {
	npi, usedDefault := s.cfg.ResolveNPI(input)

	ctx, span := tracer.Start(ctx, "search")
	defer span.End()
	span.SetAttributes(attribute.String("npi", npi), attribute.Bool("npi.default", usedDefault))

	res := SearchResult{TraceID: traceIDFrom(ctx), NPI: npi, UsedDefault: usedDefault}
	log := s.log.With("trace", res.TraceID, "npi", npi)
	timings := map[string]float64{}
	start := time.Now()

	fail := func(status internal.SearchStatus, err error) (SearchResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		timings["totalMs"] = msSince(start)
		s.record(res, status, err, timings)
		return res, err
	}

	stepStart := time.Now()
	table, err := s.query(ctx, npi)
	timings["queryMs"] = msSince(stepStart)
	if npi == s.defaultNPI() {
		res.ConnectionStatus = StatusConnected
		if err != nil {
			res.ConnectionStatus = StatusConnectFailed
		}
	}
	if err != nil {
		if errors.Is(err, internal.ErrNoResults) {
			log.Warn("no results found", "err", err)
			return fail(internal.SearchNoResults, err)
		}
		log.Error("query failed", "err", err)
		return fail(internal.SearchFailed, err)
	}

	stepStart = time.Now()
	records, stats, err := s.normalize(ctx, &table)
	timings["normalizeMs"] = msSince(stepStart)
	res.Stats = stats
	if err != nil {
		log.Error("normalize failed", "err", err)
		return fail(internal.SearchFailed, err)
	}
	res.Records = records
	log.Info("search normalized", "raw", stats.RawRows, "records", stats.Records, "matched", stats.Matched,
		"blank", stats.DroppedBlank, "dupes", stats.DroppedDupe)

	if opts.Export && len(records) > 0 {
		stepStart = time.Now()
		loc, err := s.export(ctx, npi, records)
		timings["exportMs"] = msSince(stepStart)
		if err != nil {
			log.Error("export failed", "err", err)
			return fail(internal.SearchFailed, err)
		}
		res.Export = &loc
		log.Info("export delivered", "sink", loc.Sink, "location", loc.String())
	}

	timings["totalMs"] = msSince(start)
	s.record(res, internal.SearchOK, nil, timings)
	return res, nil
}

// Check runs the default NPI through the query step only.
func (s *SearchService) Check(ctx context.Context) (string, error) {
	npi := s.defaultNPI()
	if _, err := s.query(ctx, npi); err != nil {
		s.log.Warn("connectivity check failed", "npi", npi, "err", err)
		return StatusConnectFailed, err
	}
	return StatusConnected, nil
}

func (s *SearchService) defaultNPI() string {
	npi, _ := s.cfg.ResolveNPI("")
	return npi
}

func (s *SearchService) query(ctx context.Context, npi string) (internal.RawTable, error) {
	ctx, span := tracer.Start(ctx, "search.query")
	defer span.End()
	table, err := s.exec.Execute(ctx, npi)
	if err != nil {
		span.RecordError(err)
		return internal.RawTable{}, err
	}
	span.SetAttributes(attribute.Int("rows", len(table.Rows)))
	return table, nil
}

func (s *SearchService) normalize(ctx context.Context, table *internal.RawTable) ([]internal.ProviderRecord, NormalizeStats, error) {
	_, span := tracer.Start(ctx, "search.normalize")
	defer span.End()

	var lookup SpecialtyLookup
	if s.specs != nil {
		lookup = s.specs.Get()
	}
	records, stats, err := Normalize(table, lookup)
	if err != nil {
		span.RecordError(err)
		return nil, stats, err
	}
	span.SetAttributes(attribute.Int("records", stats.Records), attribute.Int("matched", stats.Matched))
	return records, stats, nil
}

func (s *SearchService) export(ctx context.Context, npi string, records []internal.ProviderRecord) (delivery.Location, error) {
	ctx, span := tracer.Start(ctx, "search.export")
	defer span.End()

	outPath := filepath.Join(s.cfg.OutputDir, ExportFileName(npi))
	if err := ExportRecordsToXLSX(records, outPath); err != nil {
		span.RecordError(err)
		return delivery.Location{}, fmt.Errorf("write %s: %w", outPath, err)
	}
	loc, err := s.sink.Deliver(ctx, outPath)
	if err != nil {
		span.RecordError(err)
		return delivery.Location{}, err
	}
	return loc, nil
}

func (s *SearchService) record(res SearchResult, status internal.SearchStatus, err error, timings map[string]float64) {
	if s.db == nil {
		return
	}
	row := internal.SearchRow{
		TraceID:     res.TraceID,
		NPI:         res.NPI,
		UsedDefault: res.UsedDefault,
		Status:      status,
		RawRows:     res.Stats.RawRows,
		Records:     res.Stats.Records,
		Matched:     res.Stats.Matched,
		TimingsMs:   timings,
	}
	if res.Export != nil {
		row.ExportRef = util.StringPtr(res.Export.String())
	}
	if err != nil {
		row.ErrorText = util.StringPtr(err.Error())
	}
	if _, dbErr := s.db.InsertSearch(row); dbErr != nil {
		s.log.Warn("search history not recorded", "trace", res.TraceID, "err", dbErr)
	}
}

func traceIDFrom(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
