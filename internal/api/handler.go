package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/service"
	"commerce-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderAPI is the order side of the saga exposed over HTTP
type OrderAPI interface {
	PlaceOrder(ctx context.Context, req *service.PlaceOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	SettleOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ShipOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	DeliverOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// PaymentAPI is the payment side of the saga exposed over HTTP
type PaymentAPI interface {
	GetPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	RefundPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
}

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	orders      OrderAPI
	payments    PaymentAPI
	idempotency gin.HandlerFunc
	checks      map[string]ReadinessCheck
}

// NewHandler creates a new HTTP handler. idempotency guards the mutating routes; nil disables it.
func NewHandler(orders OrderAPI, payments PaymentAPI, idempotency gin.HandlerFunc) *Handler {
	if idempotency == nil {
		idempotency = func(c *gin.Context) { c.Next() }
	}
	return &Handler{
		orders:      orders,
		payments:    payments,
		idempotency: idempotency,
		checks:      map[string]ReadinessCheck{},
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/payment", h.getPayment)

		guarded := v1.Group("", h.idempotency)
		guarded.POST("/orders", h.createOrder)
		guarded.POST("/orders/:id/cancel", h.cancelOrder)
		guarded.POST("/orders/:id/settle", h.settleOrder)
		guarded.POST("/orders/:id/ship", h.shipOrder)
		guarded.POST("/orders/:id/deliver", h.deliverOrder)
		guarded.POST("/orders/:id/refund", h.refundPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order placement
func (h *Handler) createOrder(c *gin.Context) {
	var req service.PlaceOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "Invalid request body",
			Code:    "invalid_request",
			Details: err.Error(),
		})
		return
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	h.withOrderID(c, func(id uuid.UUID) (interface{}, error) {
		return h.orders.GetOrder(c.Request.Context(), id)
	})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	h.withOrderID(c, func(id uuid.UUID) (interface{}, error) {
		return h.orders.CancelOrder(c.Request.Context(), id)
	})
}

func (h *Handler) settleOrder(c *gin.Context) {
	h.withOrderID(c, func(id uuid.UUID) (interface{}, error) {
		return h.orders.SettleOrder(c.Request.Context(), id)
	})
}

func (h *Handler) shipOrder(c *gin.Context) {
	h.withOrderID(c, func(id uuid.UUID) (interface{}, error) {
		return h.orders.ShipOrder(c.Request.Context(), id)
	})
}

func (h *Handler) deliverOrder(c *gin.Context) {
	h.withOrderID(c, func(id uuid.UUID) (interface{}, error) {
		return h.orders.DeliverOrder(c.Request.Context(), id)
	})
}

func (h *Handler) getPayment(c *gin.Context) {
	h.withOrderID(c, func(id uuid.UUID) (interface{}, error) {
		return h.payments.GetPayment(c.Request.Context(), id)
	})
}

func (h *Handler) refundPayment(c *gin.Context) {
	h.withOrderID(c, func(id uuid.UUID) (interface{}, error) {
		return h.payments.RefundPayment(c.Request.Context(), id)
	})
}

// withOrderID parses the :id param, runs fn and renders its result as 200
func (h *Handler) withOrderID(c *gin.Context, fn func(id uuid.UUID) (interface{}, error)) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: "Invalid order ID",
			Code:  "invalid_order_id",
		})
		return
	}

	result, err := fn(orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
