// Command seed-db loads organizations from a JSON file into the database so
// orders can resolve them by external id.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/storage/postgres"
)

type organizationJSON struct {
	ExternalID string `json:"externalId"`
	ShortCode  string `json:"shortCode"`
}

func main() {
	var (
		databaseURL string
		orgsFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&orgsFile, "organizations-file", "db/seed/organizations.json", "path to organizations JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, orgsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, orgsFile string) error {
	raw, err := os.ReadFile(orgsFile)
	if err != nil {
		return errors.Wrap(err, "read organizations file")
	}

	var orgs []organizationJSON
	if err := json.Unmarshal(raw, &orgs); err != nil {
		return errors.Wrap(err, "parse organizations file")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	const q = `
		INSERT INTO organizations (id, external_id, short_code)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE SET short_code = EXCLUDED.short_code`

	for _, org := range orgs {
		if _, err := pool.Exec(ctx, q, uuid.New().String(), org.ExternalID, org.ShortCode); err != nil {
			return errors.Wrapf(err, "seed organization %q", org.ExternalID)
		}
		slog.Info("seeded organization",
			slog.String("external_id", org.ExternalID),
			slog.String("short_code", org.ShortCode))
	}
	return nil
}
