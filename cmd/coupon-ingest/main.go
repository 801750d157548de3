// Command coupon-ingest bulk-imports single-use promo codes from gzipped
// code-list files (one code per line) dropped by marketing campaigns.
//
// Codes may appear in several files; each code must be created exactly once.
// Every file is scanned concurrently: a per-file bloom filter gives a cheap
// cross-file duplicate pre-check, and an exact merge pass resolves the bloom
// filter's false positives before anything is written.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/evermart/coupon-service/internal/domain/coupon"
	"github.com/evermart/coupon-service/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 6
	maxCodeLen    = 24
)

// campaign is the coupon template applied to every ingested code.
type campaign struct {
	name         string
	discountType string
	value        decimal.Decimal
	minOrder     decimal.Decimal
	maxDiscount  decimal.Decimal
	totalLimit   int
	perUserLimit int
	validDays    int
}

func main() {
	var (
		dataDir      string
		databaseURL  string
		name         string
		discountType string
		value        string
		minOrder     string
		maxDiscount  string
		totalLimit   int
		perUserLimit int
		validDays    int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz code list files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&name, "name", "Campaign code", "coupon display name for ingested codes")
	flag.StringVar(&discountType, "discount-type", "percentage", "discount type: percentage or fixed_amount")
	flag.StringVar(&value, "value", "10", "discount value")
	flag.StringVar(&minOrder, "min-order", "0", "minimum order value (0 = none)")
	flag.StringVar(&maxDiscount, "max-discount", "0", "maximum discount cap (0 = none)")
	flag.IntVar(&totalLimit, "total-limit", 1, "total usage limit per code (0 = unlimited)")
	flag.IntVar(&perUserLimit, "per-user-limit", 1, "per-user usage limit per code (0 = unlimited)")
	flag.IntVar(&validDays, "valid-days", 30, "validity window in days from now (0 = unbounded)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if t := coupon.DiscountType(discountType); !t.Valid() {
		slog.Error("invalid discount type", slog.String("discount_type", discountType))
		os.Exit(1)
	}

	c := campaign{
		name:         name,
		discountType: discountType,
		value:        decimal.RequireFromString(value),
		minOrder:     decimal.RequireFromString(minOrder),
		maxDiscount:  decimal.RequireFromString(maxDiscount),
		totalLimit:   totalLimit,
		perUserLimit: perUserLimit,
		validDays:    validDays,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, c); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, c campaign) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list data files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz files in %s", dataDir)
	}

	slog.Info("scanning code files", slog.Int("files", len(files)))

	codes, err := collectCodes(ctx, files)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}

	slog.Info("unique codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeCoupons(ctx, pool, codes, c)
}

// fileCodes holds the codes found in one file. The shared bloom filter is a
// pre-check only; the exact map inside each result resolves false positives.
type fileCodes struct {
	codes map[string]struct{}
}

// collectCodes streams every file concurrently and merges the per-file code
// sets into one deduplicated set.
func collectCodes(ctx context.Context, files []string) ([]string, error) {
	results := make([]fileCodes, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(scanFile(ctx, i, f, results))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]struct{})
	for _, r := range results {
		for code := range r.codes {
			merged[code] = struct{}{}
		}
	}

	codes := make([]string, 0, len(merged))
	for code := range merged {
		codes = append(codes, code)
	}
	return codes, nil
}

func scanFile(ctx context.Context, idx int, path string, results []fileCodes) func() error {
	return func() error {
		// The bloom filter suppresses repeated lines cheaply; the exact map
		// is still needed because the filter can report false positives.
		seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		codes := make(map[string]struct{})
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}
			count++
			if count%progressEvery == 0 {
				slog.Info("scan progress",
					slog.Int("file", idx+1),
					slog.Uint64("lines", count),
				)
			}
			if seen.TestAndAddString(code) {
				return
			}
			codes[code] = struct{}{}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d", idx+1)
		}

		slog.Info("scan complete",
			slog.Int("file", idx+1),
			slog.Uint64("lines", count),
			slog.Int("codes", len(codes)),
		)

		results[idx] = fileCodes{codes: codes}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeCoupons bulk-inserts one coupon per code via COPY, skipping codes
// that already exist.
func writeCoupons(ctx context.Context, pool *pgxpool.Pool, codes []string, c campaign) error {
	// COPY cannot skip conflicts, so filter out existing codes first.
	rows, err := pool.Query(ctx, `SELECT code FROM coupons WHERE code = ANY($1)`, codes)
	if err != nil {
		return errors.Wrap(err, "check existing codes")
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return errors.Wrap(err, "check existing codes")
	}
	skip := make(map[string]struct{}, len(existing))
	for _, code := range existing {
		skip[code] = struct{}{}
	}

	now := time.Now().UTC()
	var validFrom, validUntil *time.Time
	if c.validDays > 0 {
		until := now.AddDate(0, 0, c.validDays)
		validFrom, validUntil = &now, &until
	}

	inserts := make([][]any, 0, len(codes))
	for _, code := range codes {
		if _, ok := skip[code]; ok {
			continue
		}
		inserts = append(inserts, []any{
			uuid.New().String(), code, c.name, c.discountType, c.value,
			c.minOrder, c.maxDiscount, c.totalLimit, c.perUserLimit,
			validFrom, validUntil, true, []string{}, now, now,
		})
	}
	if len(inserts) == 0 {
		slog.Info("all codes already present, nothing to write")
		return nil
	}

	slog.Info("writing coupons",
		slog.Int("new", len(inserts)),
		slog.Int("existing", len(skip)),
	)

	written, err := pool.CopyFrom(ctx,
		pgx.Identifier{"coupons"},
		[]string{
			"id", "code", "name", "discount_type", "value",
			"min_order_value", "max_discount", "total_limit", "per_user_limit",
			"valid_from", "valid_until", "active", "category_ids",
			"created_at", "updated_at",
		},
		pgx.CopyFromRows(inserts),
	)
	if err != nil {
		return errors.Wrap(err, "copy coupons")
	}

	slog.Info("coupons written", slog.Int64("count", written))
	return nil
}
