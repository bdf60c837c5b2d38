package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumapay/settlement/internal/app/service/settlement"
	"github.com/lumapay/settlement/pkg/response"
)

// @Summary      Scan payments
// @Description  Paginated, filterable payment listing for admin pages.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body settlement.ScanPaymentsRequest true "Scan request"
// @Success      200  {object}  handlers.RespScanPayments
// @Router       /api/v1/admin/payments/scan [post]
func ApiScanPayments(mgr settlement.SettlementManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req settlement.ScanPaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](http.StatusBadRequest, err.Error()))
			return
		}

		res, err := mgr.ScanPayments(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminPaymentRoutes(r gin.IRouter, mgr settlement.SettlementManager) {
	r.POST("/payments/scan", ApiScanPayments(mgr))
}
