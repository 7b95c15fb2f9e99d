// sync-period runs one dump sync without starting the HTTP server.
//
// Usage: go run ./scripts/sync-period [-year 2024 -month 1] [-policy update]
//
// Without -year/-month the previous calendar month is synced. Configuration
// is read the same way as the server (config.yaml plus environment), and the
// query cache uses the in-process backend, so a running server's Redis cache
// is not invalidated; clear it with POST /api/cache/clear afterwards.
//
// Flags:
//
//	-year     Dump year (requires -month)
//	-month    Dump month 1-12 (requires -year)
//	-policy   Override SYNC_UPDATE_POLICY ("skip" or "update")
//	-json     Print the full report as JSON instead of a summary
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/cache"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/config"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/database"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/downloader"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/extractor"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/logging"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/repositories"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/services"
)

func main() {
	year := flag.Int("year", 0, "Dump year (requires -month)")
	month := flag.Int("month", 0, "Dump month 1-12 (requires -year)")
	policy := flag.String("policy", "", "Override the update policy (skip or update)")
	asJSON := flag.Bool("json", false, "Print the full report as JSON")
	flag.Parse()

	if (*year == 0) != (*month == 0) {
		fmt.Fprintf(os.Stderr, "Usage: %s [-year YYYY -month M] [-policy skip|update] [-json]\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load("cli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ResolveServiceHosts()
	if *policy != "" {
		if *policy != config.UpdatePolicySkip && *policy != config.UpdatePolicyUpdate {
			fmt.Fprintf(os.Stderr, "Invalid -policy %q\n", *policy)
			os.Exit(1)
		}
		cfg.Sync.UpdatePolicy = *policy
	}

	logConfig := zap.NewDevelopmentConfig()
	logConfig.DisableStacktrace = true
	logger, err := logConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := run(ctx, cfg, *year, *month, logger)
	if report != nil {
		printReport(report, *asJSON)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sync failed: %s\n", logging.SanitizeError(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, year, month int, logger *zap.Logger) (*models.SyncReport, error) {
	db, err := database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := database.RunMigrations(db, cfg.Database.MigrationsPath, logger); err != nil {
		return nil, err
	}

	tables, err := repositories.NewTables(cfg.Database.Tables)
	if err != nil {
		return nil, err
	}

	dl, err := downloader.New(downloader.Config{
		BaseURL:    cfg.Sync.SourceBaseURL,
		StagingDir: cfg.Sync.StagingDir,
		Timeout:    cfg.Sync.FetchTimeout,
	}, nil, logger)
	if err != nil {
		return nil, err
	}

	shapes, err := extractor.ParseShapePolicy(cfg.Extractor.ShapeOrder)
	if err != nil {
		return nil, err
	}

	queryCache := cache.New(cache.NewMemoryKV(), cache.Options{Prefix: cfg.Cache.Prefix}, logger)
	reconciler := services.NewReconciler(repositories.NewContractRepository(db, tables), queryCache, cfg.Sync.UpdatePolicy, logger)
	runner := services.NewSyncRunner(dl, extractor.New(shapes, logger), reconciler, nil, logger)

	if year == 0 {
		return runner.RunSync(ctx)
	}
	period, err := models.NewPeriod(year, month)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, period)
}

func printReport(r *models.SyncReport, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(r)
		return
	}

	fmt.Printf("Period:      %s (%s)\n", r.Period, r.State)
	fmt.Printf("Seen:        %d\n", r.Seen)
	fmt.Printf("Inserted:    %d\n", r.Inserted)
	fmt.Printf("Updated:     %d\n", r.Updated)
	fmt.Printf("Duplicates:  %d\n", r.SkippedDuplicate)
	fmt.Printf("Amendments:  %d\n", r.AmendmentsInserted)
	fmt.Printf("Suppliers:   %d\n", r.SuppliersInserted)
	fmt.Printf("No supplier: %d\n", r.NoSupplier)
	fmt.Printf("Failed:      %d\n", r.Failed)
	for _, f := range r.Failures {
		fmt.Printf("  #%d %s: %s\n", f.Index, f.Kind, f.Message)
	}
	for _, c := range r.Conflicts {
		fmt.Printf("  conflict #%d IČO %s: %q vs %q\n", c.Index, c.TaxID, c.ExistingName, c.IncomingName)
	}
	fmt.Printf("Duration:    %s\n", r.Duration)
}
