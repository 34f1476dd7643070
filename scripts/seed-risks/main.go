// seed-risks loads risk register entries from a YAML file.
//
// Every entry goes through the same create path as the API, so score and
// level are computed and validation rules apply. Invalid entries are
// reported and skipped.
//
// Usage: go run ./scripts/seed-risks [-dry-run] [-driver postgres|redis] <file.yaml>
//
// Store connection: uses the server's configuration (config.yaml and
// environment variables).
//
// Flags:
//
//	-dry-run   Validate and print entries without writing them (default: false)
//	-driver    Override the configured store driver
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/risk-register/pkg/config"
	"github.com/ekaya-inc/risk-register/pkg/logging"
	"github.com/ekaya-inc/risk-register/pkg/models"
	"github.com/ekaya-inc/risk-register/pkg/repositories"
	"github.com/ekaya-inc/risk-register/pkg/services"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Validate and print entries without writing them")
	driver := flag.String("driver", "", "Store driver override (postgres or redis)")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-dry-run] [-driver postgres|redis] <file.yaml>\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read seed file: %v\n", err)
		os.Exit(1)
	}

	payloads, err := parseSeedFile(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid seed file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d risk(s) from %s\n", len(payloads), args[0])

	if *dryRun {
		invalid := printDryRun(payloads, time.Now().UTC())
		if invalid > 0 {
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load("seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *driver != "" {
		cfg.Store.Driver = *driver
	}

	logger, err := logging.NewLogger("warn", "console", "seed-risks")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	store, err := repositories.OpenRiskStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s store: %s\n", cfg.Store.Driver, logging.SanitizeError(err))
		os.Exit(1)
	}
	defer store.Close()

	created, failed := seed(ctx, services.NewRiskService(store.Risks, logger), payloads, logger)
	fmt.Printf("\nCreated %d risk(s), %d failed\n", created, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// seed creates each payload through the service and reports per-entry results.
func seed(ctx context.Context, svc services.RiskService, payloads []*models.RiskPatch, logger *zap.Logger) (created, failed int) {
	for i, p := range payloads {
		risk, err := svc.Create(ctx, p)
		if err != nil {
			failed++
			fmt.Printf("  [%d] FAILED: %s\n", i+1, logging.SanitizeError(err))
			logger.Debug("Seed entry rejected", zap.Int("index", i+1), zap.Error(err))
			continue
		}
		created++
		fmt.Printf("  [%d] %s  %-8s %2d  %s\n", i+1, risk.ID, risk.Level, risk.Score, risk.Title)
	}
	return created, failed
}

// printDryRun shows what would be created and returns the number of invalid
// entries.
func printDryRun(payloads []*models.RiskPatch, now time.Time) int {
	invalid := 0
	for i, p := range payloads {
		risk := models.NewRisk(p, now)
		if err := risk.Validate(); err != nil {
			invalid++
			fmt.Printf("  [%d] INVALID: %v\n", i+1, err)
			continue
		}
		fmt.Printf("  [%d] %-8s %2d  %s (%s, %s)\n", i+1, risk.Level, risk.Score, risk.Title, risk.Category, risk.Status)
	}
	fmt.Printf("\n(DRY RUN - %d valid, %d invalid, nothing written)\n", len(payloads)-invalid, invalid)
	return invalid
}
