package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type orderRow struct {
	ID               uuid.UUID           `db:"id"`
	TenantID         string              `db:"tenant_id"`
	CustomerID       uuid.UUID           `db:"customer_id"`
	Status           string              `db:"status"`
	CouponCode       sql.NullString      `db:"coupon_code"`
	DiscountAmount   decimal.NullDecimal `db:"discount_amount"`
	DiscountCurrency sql.NullString      `db:"discount_currency"`
	TotalAmount      decimal.Decimal     `db:"total_amount"`
	TotalCurrency    string              `db:"total_currency"`
	CreatedAt        time.Time           `db:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at"`
}

type orderItemRow struct {
	OrderID           uuid.UUID       `db:"order_id"`
	Position          int             `db:"position"`
	ProductID         uuid.UUID       `db:"product_id"`
	SKU               string          `db:"sku"`
	Quantity          int             `db:"quantity"`
	UnitPriceAmount   decimal.Decimal `db:"unit_price_amount"`
	UnitPriceCurrency string          `db:"unit_price_currency"`
}

// SaveOrder inserts or updates an order. Items are written once; later saves leave them untouched.
func (s *Store) SaveOrder(ctx context.Context, order *models.Order) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		row := orderRow{
			ID:            order.ID,
			TenantID:      order.TenantID,
			CustomerID:    order.CustomerID,
			Status:        string(order.Status),
			TotalAmount:   order.TotalAmount.Amount(),
			TotalCurrency: order.TotalAmount.Currency(),
			CreatedAt:     order.CreatedAt,
		}
		if order.CouponCode != "" {
			row.CouponCode = sql.NullString{String: order.CouponCode, Valid: true}
		}
		if order.Discount != nil {
			row.DiscountAmount = decimal.NullDecimal{Decimal: order.Discount.Amount(), Valid: true}
			row.DiscountCurrency = sql.NullString{String: order.Discount.Currency(), Valid: true}
		}

		err := s.conn(ctx).GetContext(ctx, &order.UpdatedAt, `
			INSERT INTO orders (id, tenant_id, customer_id, status, coupon_code, discount_amount,
				discount_currency, total_amount, total_currency, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				coupon_code = EXCLUDED.coupon_code,
				discount_amount = EXCLUDED.discount_amount,
				discount_currency = EXCLUDED.discount_currency,
				total_amount = EXCLUDED.total_amount,
				total_currency = EXCLUDED.total_currency,
				updated_at = NOW()
			RETURNING updated_at`,
			row.ID, row.TenantID, row.CustomerID, row.Status, row.CouponCode, row.DiscountAmount,
			row.DiscountCurrency, row.TotalAmount, row.TotalCurrency, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}

		for i, item := range order.Items {
			_, err := s.conn(ctx).ExecContext(ctx, `
				INSERT INTO order_items (order_id, position, product_id, sku, quantity,
					unit_price_amount, unit_price_currency)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (order_id, position) DO NOTHING`,
				order.ID, i, item.ProductID, item.SKU, item.Quantity,
				item.UnitPrice.Amount(), item.UnitPrice.Currency())
			if err != nil {
				return fmt.Errorf("failed to save order item: %w", err)
			}
		}
		return nil
	})
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var row orderRow
	err := s.conn(ctx).GetContext(ctx, &row, `
		SELECT id, tenant_id, customer_id, status, coupon_code, discount_amount, discount_currency,
			total_amount, total_currency, created_at, updated_at
		FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var itemRows []orderItemRow
	err = s.conn(ctx).SelectContext(ctx, &itemRows, `
		SELECT order_id, position, product_id, sku, quantity, unit_price_amount, unit_price_currency
		FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:          row.ID,
		TenantID:    row.TenantID,
		CustomerID:  row.CustomerID,
		Status:      models.OrderStatus(row.Status),
		Items:       make([]models.OrderItem, 0, len(itemRows)),
		CouponCode:  row.CouponCode.String,
		TotalAmount: models.NewMoney(row.TotalAmount, row.TotalCurrency),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.DiscountAmount.Valid {
		discount := models.NewMoney(row.DiscountAmount.Decimal, row.DiscountCurrency.String)
		order.Discount = &discount
	}
	for _, ir := range itemRows {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: ir.ProductID,
			SKU:       ir.SKU,
			Quantity:  ir.Quantity,
			UnitPrice: models.NewMoney(ir.UnitPriceAmount, ir.UnitPriceCurrency),
		})
	}
	return order, nil
}

type paymentRow struct {
	ID           uuid.UUID       `db:"id"`
	OrderID      uuid.UUID       `db:"order_id"`
	TenantID     string          `db:"tenant_id"`
	Amount       decimal.Decimal `db:"amount"`
	Currency     string          `db:"currency"`
	Status       string          `db:"status"`
	ProviderTxID string          `db:"provider_tx_id"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// CreatePayment inserts a payment unless the order already has one.
// It reports whether a new row was written.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO payments (id, order_id, tenant_id, amount, currency, status, provider_tx_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO NOTHING`,
		payment.ID, payment.OrderID, payment.TenantID, payment.Amount.Amount(),
		payment.Amount.Currency(), string(payment.Status), payment.ProviderTxID)
	if err != nil {
		return false, fmt.Errorf("failed to create payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetPaymentByOrderID retrieves the payment for an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var row paymentRow
	err := s.conn(ctx).GetContext(ctx, &row, `
		SELECT id, order_id, tenant_id, amount, currency, status, provider_tx_id, created_at, updated_at
		FROM payments WHERE order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", models.ErrPaymentNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &models.Payment{
		ID:           row.ID,
		OrderID:      row.OrderID,
		TenantID:     row.TenantID,
		Amount:       models.NewMoney(row.Amount, row.Currency),
		Status:       models.PaymentStatus(row.Status),
		ProviderTxID: row.ProviderTxID,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

// UpdatePaymentStatus updates payment status
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, status models.PaymentStatus, providerTxID string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"UPDATE payments SET status = $1, provider_tx_id = $2, updated_at = NOW() WHERE id = $3",
		string(status), providerTxID, paymentID)
	return err
}
