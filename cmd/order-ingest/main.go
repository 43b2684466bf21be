// Command order-ingest bulk-imports legacy order exports (gzipped NDJSON,
// one order per line) into the database. References present in the export
// are preserved; orders whose reference already exists are skipped.
//
// A bloom filter of the references already in the database pre-screens each
// line: a negative means the reference is definitely new, a positive is
// verified with an exact query before skipping.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/order"
	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	maxLineBytes  = 1 << 20
)

type legacyOrder struct {
	Reference          string       `json:"reference"`
	ReferenceID        int64        `json:"referenceId"`
	TargetOrganization string       `json:"targetOrganization"`
	CreatedAt          time.Time    `json:"createdAt"`
	Items              []legacyItem `json:"items"`
}

type legacyItem struct {
	Price         json.RawMessage `json:"price"`
	PriceCurrency string          `json:"priceCurrency"`
	Quantity      int64           `json:"quantity"`
	Taxes         []legacyTax     `json:"taxes"`
}

type legacyTax struct {
	Percentage json.Number `json:"percentage"`
}

func main() {
	var (
		databaseURL     string
		defaultCurrency string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&defaultCurrency, "default-currency", "EUR", "currency for orders without items")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		slog.Error("no input files: pass one or more .ndjson.gz exports")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, defaultCurrency, flag.Args()); err != nil {
		slog.Error("order ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("order ingest completed successfully")
}

func run(ctx context.Context, databaseURL, defaultCurrency string, files []string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	seen, err := loadReferenceFilter(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "load reference filter")
	}

	ing := &ingester{
		pool:   pool,
		orgs:   postgres.NewOrganizationRepository(pool),
		orders: postgres.NewOrderRepository(pool),
		calc:   order.NewCalculator(defaultCurrency),
		seen:   seen,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, file := range files {
		g.Go(func() error {
			imported, skipped, err := ing.ingestFile(gctx, file)
			if err != nil {
				return errors.Wrapf(err, "ingest %s", file)
			}
			slog.Info("file done",
				slog.String("file", file),
				slog.Int("imported", imported),
				slog.Int("skipped", skipped))
			return nil
		})
	}
	return g.Wait()
}

// loadReferenceFilter seeds a bloom filter with every reference already in
// the database.
func loadReferenceFilter(ctx context.Context, pool *pgxpool.Pool) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

	rows, err := pool.Query(ctx, `SELECT reference FROM orders WHERE reference IS NOT NULL`)
	if err != nil {
		return nil, errors.Wrap(err, "query references")
	}
	defer rows.Close()

	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, errors.Wrap(err, "scan reference")
		}
		filter.AddString(ref)
	}
	return filter, rows.Err()
}

type ingester struct {
	pool   *pgxpool.Pool
	orgs   *postgres.OrganizationRepository
	orders *postgres.OrderRepository
	calc   *order.Calculator

	mu   sync.Mutex
	seen *bloom.BloomFilter
}

func (ing *ingester) ingestFile(ctx context.Context, path string) (imported, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrap(err, "open")
	}
	defer f.Close()

	zr, err := pgzip.NewReader(f)
	if err != nil {
		return 0, 0, errors.Wrap(err, "gzip reader")
	}
	defer zr.Close()

	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return imported, skipped, err
		}

		var legacy legacyOrder
		if err := json.Unmarshal(scanner.Bytes(), &legacy); err != nil {
			return imported, skipped, errors.Wrapf(err, "line %d", line)
		}

		ok, err := ing.ingestOrder(ctx, &legacy)
		if err != nil {
			return imported, skipped, errors.Wrapf(err, "line %d (%s)", line, legacy.Reference)
		}
		if ok {
			imported++
		} else {
			skipped++
		}
	}
	return imported, skipped, scanner.Err()
}

// ingestOrder imports one legacy order, reporting false when its reference
// already exists.
func (ing *ingester) ingestOrder(ctx context.Context, legacy *legacyOrder) (bool, error) {
	if legacy.Reference == "" || legacy.ReferenceID <= 0 {
		return false, errors.Errorf("missing reference on legacy order")
	}

	exists, err := ing.referenceExists(ctx, legacy.Reference)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	org, err := ing.orgs.FindOrCreateByExternalID(ctx, legacy.TargetOrganization)
	if err != nil {
		return false, err
	}

	items, err := decodeLegacyItems(legacy.Items)
	if err != nil {
		return false, err
	}

	o := &order.Order{
		ID:                 uuid.New().String(),
		TargetOrganization: legacy.TargetOrganization,
		Organization:       org,
		CreatedAt:          legacy.CreatedAt,
		UpdatedAt:          legacy.CreatedAt,
	}
	o.SetItems(items)
	o.AssignReference(legacy.ReferenceID, legacy.Reference)

	totals, err := ing.calc.Compute(o.Items)
	if err != nil {
		return false, err
	}
	o.ApplyTotals(totals)

	if err := ing.orders.Create(ctx, o); err != nil {
		return false, err
	}

	// Future allocations must never collide with imported ids.
	const bump = `
		UPDATE organizations
		SET reference_counter = GREATEST(reference_counter, $2)
		WHERE id = $1`
	if _, err := ing.pool.Exec(ctx, bump, org.ID, legacy.ReferenceID); err != nil {
		return false, errors.Wrap(err, "bump reference counter")
	}

	ing.mu.Lock()
	ing.seen.AddString(legacy.Reference)
	ing.mu.Unlock()
	return true, nil
}

// referenceExists consults the bloom filter first; only possible positives
// hit the database.
func (ing *ingester) referenceExists(ctx context.Context, ref string) (bool, error) {
	ing.mu.Lock()
	maybe := ing.seen.TestString(ref)
	ing.mu.Unlock()
	if !maybe {
		return false, nil
	}

	var exists bool
	err := ing.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE reference = $1)`, ref,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check reference")
	}
	return exists, nil
}

func decodeLegacyItems(items []legacyItem) ([]order.OrderItem, error) {
	decoded := make([]order.OrderItem, len(items))
	for i, item := range items {
		price, err := order.ParseUnitPrice(item.Price)
		if err != nil {
			return nil, err
		}
		taxes := make([]order.Tax, len(item.Taxes))
		for j, t := range item.Taxes {
			pct, err := decimal.NewFromString(t.Percentage.String())
			if err != nil {
				return nil, errors.Wrapf(err, "tax percentage %q", t.Percentage)
			}
			taxes[j] = order.Tax{Percentage: pct}
		}
		decoded[i] = order.OrderItem{
			Price:         price,
			PriceCurrency: item.PriceCurrency,
			Quantity:      item.Quantity,
			Taxes:         taxes,
		}
	}
	return decoded, nil
}
