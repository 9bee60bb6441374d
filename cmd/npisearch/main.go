package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"npisearch/internal"
	"npisearch/internal/config"
	"npisearch/internal/delivery"
	"npisearch/internal/logger"
	"npisearch/internal/pipeline"
	"npisearch/internal/specialty"
	"npisearch/internal/storage"
	"npisearch/internal/util"
	"npisearch/internal/warehouse"
)

type app struct {
	cfg   config.Config
	log   logger.Logger
	db    *storage.DB
	specs *specialty.Cache
}

func main() {
	cfg, err := config.Load()
	must(err)

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.LogLevel(cfg.LogLevel)
	logCfg.JSON = cfg.LogJSON
	log := logger.NewLogger(logCfg)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	a := &app{cfg: cfg, log: log, db: db, specs: specialty.NewCache(cfg.SpecialtyTablePath, log)}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand(a).ExecuteContext(ctx); err != nil {
		stop()
		_ = db.Close()
		must(err)
	}
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "npisearch",
		Short:         "Look up a provider by NPI and export the result to xlsx",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newSearchCommand(a))
	cmd.AddCommand(newCheckCommand(a))
	cmd.AddCommand(newSpecialtyCheckCommand(a))
	cmd.AddCommand(newHistoryCommand(a))
	return cmd
}

func newSearchCommand(a *app) *cobra.Command {
	var npi, format string
	var noExport bool
	cmd := &cobra.Command{
		Use:   "search [npi]",
		Short: "Query the provider source, normalize the rows and export them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if npi == "" && len(args) == 1 {
				npi = args[0]
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("unsupported format: %s", format)
			}

			svc, closeFn, err := a.searchService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := svc.Search(cmd.Context(), npi, pipeline.SearchOptions{Export: !noExport})
			a.recordSpecialtyLoad()
			if res.ConnectionStatus != "" {
				fmt.Println(res.ConnectionStatus)
			}
			if errors.Is(err, internal.ErrNoResults) {
				fmt.Printf("No results found for NPI: %s\n", res.NPI)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				if err := pipeline.RenderJSON(out, res.Records); err != nil {
					return err
				}
			} else if err := pipeline.RenderTable(out, res.Records); err != nil {
				return err
			}
			if res.Export != nil {
				fmt.Fprintf(out, "exported %d rows to %s\n", len(res.Records), res.Export.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&npi, "npi", "", "provider NPI (default "+config.DefaultNPI+" or DEFAULT_NPI)")
	cmd.Flags().StringVar(&format, "format", "table", "table|json")
	cmd.Flags().BoolVar(&noExport, "no-export", false, "skip the xlsx export")
	return cmd
}

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the provider source answers for the default NPI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := a.searchService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			status, err := svc.Check(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return err
		},
	}
}

func newSpecialtyCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "specialty:check",
		Short: "Load the specialty side table and report what was kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mapping, loadErr := a.specs.Reload()
			a.recordSpecialtyLoad()
			report, _ := a.specs.Status()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "source=%s rows=%d entries=%d skipped=%d\n", report.Source, report.Rows, mapping.Len(), report.SkippedRows)
			if len(report.DuplicateIDs) > 0 {
				fmt.Fprintf(out, "duplicate ids (last row wins): %v\n", report.DuplicateIDs)
			}
			return loadErr
		},
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := a.db.ListSearches(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, row := range rows {
				fmt.Fprintf(out, "%-5d %-19s %-12s %-10s records=%d matched=%d %s\n",
					row.ID, row.CreatedAt, row.NPI, row.Status, row.Records, row.Matched,
					util.FirstNonEmpty(util.DerefString(row.ExportRef), util.DerefString(row.ErrorText)))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max searches to list")
	return cmd
}

func (a *app) searchService(ctx context.Context) (*pipeline.SearchService, func(), error) {
	exec, err := warehouse.Open(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	sink, err := delivery.New(ctx, a.cfg)
	if err != nil {
		_ = exec.Close()
		return nil, nil, err
	}
	log := a.log.With("driver", a.cfg.WarehouseDriver)
	svc := pipeline.NewSearchService(exec, a.specs, sink, a.db, log, a.cfg)
	return svc, func() { _ = exec.Close() }, nil
}

func (a *app) recordSpecialtyLoad() {
	report, loadErr := a.specs.Status()
	if report.Source == "" {
		return
	}
	errText := ""
	if loadErr != nil {
		errText = loadErr.Error()
	}
	meta := map[string]string{
		storage.MetaSpecialtySource:  report.Source,
		storage.MetaSpecialtyEntries: strconv.Itoa(report.Entries),
		storage.MetaSpecialtyLoaded:  time.Now().UTC().Format(time.RFC3339),
		storage.MetaSpecialtyError:   errText,
	}
	for key, value := range meta {
		if err := a.db.SetMetadata(key, value); err != nil {
			a.log.Warn("metadata not recorded", "key", key, "err", err)
			return
		}
	}
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
