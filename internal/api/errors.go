package api

import (
	"errors"
	"net/http"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{models.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{models.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{models.ErrCustomerNotFound, http.StatusNotFound, "customer_not_found"},
	{models.ErrProductNotFound, http.StatusNotFound, "product_not_found"},

	{models.ErrInsufficientInventory, http.StatusUnprocessableEntity, "insufficient_inventory"},
	{models.ErrInvalidCoupon, http.StatusUnprocessableEntity, "invalid_coupon"},
	{models.ErrCouponExpiredOrInactive, http.StatusUnprocessableEntity, "coupon_expired_or_inactive"},
	{models.ErrCouponAlreadyApplied, http.StatusUnprocessableEntity, "coupon_already_applied"},
	{models.ErrCurrencyMismatch, http.StatusUnprocessableEntity, "currency_mismatch"},
	{models.ErrInvalidQuantity, http.StatusUnprocessableEntity, "invalid_quantity"},

	{models.ErrInvalidOrderTransition, http.StatusConflict, "invalid_order_transition"},
	{models.ErrPaymentNotRefundable, http.StatusConflict, "payment_not_refundable"},
	{models.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},

	{models.ErrEventPublish, http.StatusBadGateway, "event_publish_failed"},
}

// statusForError maps a service error to an HTTP status and a stable error code
func statusForError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func respondError(c *gin.Context, err error) {
	status, code := statusForError(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = "Internal server error"
	}

	c.AbortWithStatusJSON(status, errorResponse{Error: message, Code: code})
}
