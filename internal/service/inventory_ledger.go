package service

import (
	"context"
	"fmt"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxStockAttempts bounds compare-and-set retries when writers race on one product row
const maxStockAttempts = 5

// InventoryLedger reserves and releases product stock
type InventoryLedger struct {
	products ProductRepository
	logger   *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger(products ProductRepository) *InventoryLedger {
	return &InventoryLedger{
		products: products,
		logger:   util.GetLogger(),
	}
}

// Reserve decrements the available count of a product and returns the product as loaded.
// It fails with ErrInsufficientInventory when fewer than quantity units are available.
func (l *InventoryLedger) Reserve(ctx context.Context, productID uuid.UUID, quantity int) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if quantity < 1 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidQuantity, quantity)
	}

	for attempt := 0; attempt < maxStockAttempts; attempt++ {
		product, err := l.products.GetProductByID(ctx, productID)
		if err != nil {
			util.InventoryReservationsFailed.WithLabelValues("lookup").Inc()
			return nil, err
		}

		if product.AvailableCount < quantity {
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			return nil, fmt.Errorf("%w: product %s has %d, requested %d",
				models.ErrInsufficientInventory, productID, product.AvailableCount, quantity)
		}

		next := product.AvailableCount - quantity
		ok, err := l.products.CompareAndSetStock(ctx, productID, product.AvailableCount, next)
		if err != nil {
			util.InventoryReservationsFailed.WithLabelValues("error").Inc()
			return nil, err
		}
		if ok {
			product.AvailableCount = next
			return product, nil
		}

		l.logger.Debug("Stock changed concurrently, retrying reservation",
			zap.String("product_id", productID.String()),
			zap.Int("attempt", attempt+1))
	}

	util.InventoryReservationsFailed.WithLabelValues("contention").Inc()
	return nil, fmt.Errorf("reserve product %s: too much contention", productID)
}

// Release returns quantity units to a product's available count (compensation)
func (l *InventoryLedger) Release(ctx context.Context, productID uuid.UUID, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Release")
	defer span.End()

	if quantity < 1 {
		return fmt.Errorf("%w: %d", models.ErrInvalidQuantity, quantity)
	}

	for attempt := 0; attempt < maxStockAttempts; attempt++ {
		product, err := l.products.GetProductByID(ctx, productID)
		if err != nil {
			return err
		}

		ok, err := l.products.CompareAndSetStock(ctx, productID, product.AvailableCount, product.AvailableCount+quantity)
		if err != nil {
			return err
		}
		if ok {
			util.InventoryReleasedTotal.Add(float64(quantity))
			return nil
		}
	}

	return fmt.Errorf("release product %s: too much contention", productID)
}
