// Command seed-db loads sample coupons and an API key into the database for
// local development and integration testing.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/evermart/coupon-service/internal/storage/postgres"
)

type couponJSON struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	DiscountType   string          `json:"discountType"`
	Value          decimal.Decimal `json:"value"`
	MinOrderValue  decimal.Decimal `json:"minOrderValue"`
	MaxDiscount    decimal.Decimal `json:"maxDiscount"`
	TotalLimit     int             `json:"totalLimit"`
	PerUserLimit   int             `json:"perUserLimit"`
	ValidFrom      *time.Time      `json:"validFrom"`
	ValidUntil     *time.Time      `json:"validUntil"`
	Active         bool            `json:"active"`
	CategoryIDs    []string        `json:"categoryIds"`
	AssignedUserID string          `json:"assignedUserId"`
}

func main() {
	var (
		databaseURL  string
		couponsFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponsFile, "coupons-file", "db/seed/coupons.json", "path to coupons JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or COUPON_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COUPON_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("COUPON_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or COUPON_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("COUPON_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, couponsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, couponsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCoupons(ctx, pool, couponsFile); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

const upsertCouponSQL = `
INSERT INTO coupons (
	id, code, name, discount_type, value, min_order_value, max_discount,
	total_limit, per_user_limit, valid_from, valid_until, active, category_ids,
	created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
ON CONFLICT (code) DO UPDATE SET
	name = EXCLUDED.name,
	discount_type = EXCLUDED.discount_type,
	value = EXCLUDED.value,
	min_order_value = EXCLUDED.min_order_value,
	max_discount = EXCLUDED.max_discount,
	total_limit = EXCLUDED.total_limit,
	per_user_limit = EXCLUDED.per_user_limit,
	valid_from = EXCLUDED.valid_from,
	valid_until = EXCLUDED.valid_until,
	active = EXCLUDED.active,
	category_ids = EXCLUDED.category_ids,
	updated_at = now()
RETURNING id`

const upsertAssignmentSQL = `
INSERT INTO coupon_assignments (coupon_id, user_id)
VALUES ($1, $2)
ON CONFLICT (coupon_id, user_id) DO NOTHING`

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, couponsFile string) error {
	slog.Info("reading coupons file", slog.String("path", couponsFile))

	data, err := os.ReadFile(couponsFile)
	if err != nil {
		return errors.Wrap(err, "read coupons file")
	}

	var coupons []couponJSON
	if err := json.Unmarshal(data, &coupons); err != nil {
		return errors.Wrap(err, "parse coupons JSON")
	}

	slog.Info("upserting coupons", slog.Int("count", len(coupons)))

	for _, c := range coupons {
		categories := c.CategoryIDs
		if categories == nil {
			categories = []string{}
		}

		var id string
		err := pool.QueryRow(ctx, upsertCouponSQL,
			uuid.New().String(), c.Code, c.Name, c.DiscountType, c.Value,
			c.MinOrderValue, c.MaxDiscount, c.TotalLimit, c.PerUserLimit,
			c.ValidFrom, c.ValidUntil, c.Active, categories,
		).Scan(&id)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		if c.AssignedUserID != "" {
			if _, err := pool.Exec(ctx, upsertAssignmentSQL, id, c.AssignedUserID); err != nil {
				return errors.Wrapf(err, "assign coupon %s", c.Code)
			}
		}

		slog.Info("upserted coupon", slog.String("code", c.Code))
	}

	return nil
}

const upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, name, scopes, active)
VALUES ($1, $2, $3, $4, TRUE)
ON CONFLICT (key_hash) DO UPDATE SET active = TRUE`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx, upsertAPIKeySQL,
		uuid.New().String(), keyHash, "seed-admin", []string{"admin"},
	)
	if err != nil {
		return errors.Wrap(err, "upsert api key")
	}

	return nil
}
