package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lumapay/settlement/internal/app/service/settlement"
	"github.com/lumapay/settlement/internal/platform/paypal"
	"github.com/lumapay/settlement/pkg/response"
)

type completePaymentReq struct {
	GatewayOrderID string `json:"gateway_order_id"`
}

// statusForError maps the settlement error taxonomy onto HTTP status codes.
// Gateway detail (issue codes, descriptions) stays in the message for
// operator diagnosis.
func statusForError(err error) int {
	var (
		authErr    *paypal.AuthError
		orderErr   *paypal.OrderError
		captureErr *paypal.CaptureError
		lookupErr  *paypal.LookupError
	)
	switch {
	case errors.Is(err, settlement.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, settlement.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, settlement.ErrPaymentNotApproved):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrCaptureFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, paypal.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &authErr), errors.As(err, &orderErr), errors.As(err, &captureErr), errors.As(err, &lookupErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusForError(err)
	c.JSON(status, response.ErrorT[any](status, err.Error()))
}

// @Summary      Initiate payment
// @Description  Creates the local payment record and the gateway order; returns the approval URL to redirect the payer to.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body settlement.InitiateRequest true "Payment initiation request"
// @Success      200  {object}  handlers.RespInitiate
// @Router       /api/v1/payments/initiate [post]
func ApiInitiatePayment(mgr settlement.SettlementManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req settlement.InitiateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](http.StatusBadRequest, err.Error()))
			return
		}

		res, err := mgr.InitiatePayment(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Complete payment
// @Description  Captures an approved gateway order. Safe to retry: an already captured payment returns the stored result.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body handlers.completePaymentReq true "Completion request"
// @Success      200  {object}  handlers.RespComplete
// @Router       /api/v1/payments/complete [post]
func ApiCompletePayment(mgr settlement.SettlementManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req completePaymentReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](http.StatusBadRequest, err.Error()))
			return
		}

		res, err := mgr.CompletePayment(c.Request.Context(), req.GatewayOrderID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Verify payment
// @Description  Reports whether funds were captured; consults the gateway only when the local record is not yet captured.
// @Tags         Payment
// @Produce      json
// @Param        id path string true "Payment ID"
// @Success      200  {object}  handlers.RespVerify
// @Router       /api/v1/payments/{id}/verify [get]
func ApiVerifyPayment(mgr settlement.SettlementManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := mgr.VerifyPayment(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get payment details
// @Description  Returns the caller-facing view of a payment. Audit ciphertext and PII hashes are never included.
// @Tags         Payment
// @Produce      json
// @Param        id path string true "Payment ID"
// @Success      200  {object}  handlers.RespPaymentView
// @Router       /api/v1/payments/{id} [get]
func ApiGetPaymentDetails(mgr settlement.SettlementManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := mgr.GetPaymentDetails(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List user payments
// @Description  Bounded newest-first listing of a user's payments.
// @Tags         Payment
// @Produce      json
// @Param        user_id query string true "User ID"
// @Param        limit   query int    false "Max rows (default 100)"
// @Success      200  {object}  handlers.RespPaymentList
// @Router       /api/v1/payments [get]
func ApiListUserPayments(mgr settlement.SettlementManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](http.StatusBadRequest, "missing user_id"))
			return
		}
		limit := 0
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, response.ErrorT[any](http.StatusBadRequest, "invalid limit"))
				return
			}
			limit = n
		}

		res, err := mgr.ListUserPayments(c.Request.Context(), userID, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, mgr settlement.SettlementManager) {
	r.POST("/payments/initiate", ApiInitiatePayment(mgr))
	r.POST("/payments/complete", ApiCompletePayment(mgr))
	r.GET("/payments/:id/verify", ApiVerifyPayment(mgr))
	r.GET("/payments/:id", ApiGetPaymentDetails(mgr))
	r.GET("/payments", ApiListUserPayments(mgr))
}
