package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CustomerExists reports whether a customer with the given id exists
func (s *Store) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.conn(ctx).GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)", id)
	return exists, err
}

type productRow struct {
	ID             uuid.UUID       `db:"id"`
	TenantID       string          `db:"tenant_id"`
	SKU            string          `db:"sku"`
	Name           string          `db:"name"`
	PriceAmount    decimal.Decimal `db:"price_amount"`
	PriceCurrency  string          `db:"price_currency"`
	AvailableCount int             `db:"available_count"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r productRow) toModel() *models.Product {
	return &models.Product{
		ID:             r.ID,
		TenantID:       r.TenantID,
		SKU:            r.SKU,
		Name:           r.Name,
		Price:          models.NewMoney(r.PriceAmount, r.PriceCurrency),
		AvailableCount: r.AvailableCount,
		UpdatedAt:      r.UpdatedAt,
	}
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var row productRow
	err := s.conn(ctx).GetContext(ctx, &row,
		`SELECT id, tenant_id, sku, name, price_amount, price_currency, available_count, updated_at
		 FROM products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// CompareAndSetStock sets available_count to next only if it still equals expected.
// It reports false when another writer changed the row first.
func (s *Store) CompareAndSetStock(ctx context.Context, productID uuid.UUID, expected, next int) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE products SET available_count = $1, updated_at = NOW()
		 WHERE id = $2 AND available_count = $3`,
		next, productID, expected)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return false, fmt.Errorf("%w: product %s", models.ErrInsufficientInventory, productID)
		}
		return false, fmt.Errorf("failed to update stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type couponRow struct {
	Code             string          `db:"code"`
	TenantID         string          `db:"tenant_id"`
	DiscountAmount   decimal.Decimal `db:"discount_amount"`
	DiscountCurrency string          `db:"discount_currency"`
	ExpiryDate       sql.NullTime    `db:"expiry_date"`
	Active           bool            `db:"active"`
}

// GetCouponByCode retrieves a coupon by its code. Returns nil when absent.
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var row couponRow
	err := s.conn(ctx).GetContext(ctx, &row,
		`SELECT code, tenant_id, discount_amount, discount_currency, expiry_date, active
		 FROM coupons WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	coupon := &models.Coupon{
		Code:     row.Code,
		TenantID: row.TenantID,
		Discount: models.NewMoney(row.DiscountAmount, row.DiscountCurrency),
		Active:   row.Active,
	}
	if row.ExpiryDate.Valid {
		expiry := row.ExpiryDate.Time
		coupon.ExpiryDate = &expiry
	}
	return coupon, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.conn(ctx).GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
