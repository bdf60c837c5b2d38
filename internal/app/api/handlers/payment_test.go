package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/lumapay/settlement/internal/app/service/settlement"
	models "github.com/lumapay/settlement/internal/models"
)

type stubSettlementMgr struct {
	completeErr error
}

func (s *stubSettlementMgr) InitiatePayment(_ context.Context, req *settlement.InitiateRequest) (*settlement.InitiateResult, error) {
	return &settlement.InitiateResult{
		PaymentID:      "pay-1",
		GatewayOrderID: "PP-1",
		ApprovalURL:    "https://www.example.com/checkoutnow?token=PP-1",
		Status:         models.PaymentStatusInitiated,
	}, nil
}

func (s *stubSettlementMgr) CompletePayment(_ context.Context, _ string) (*settlement.CompleteResult, error) {
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	return &settlement.CompleteResult{
		PaymentID: "pay-1", OrderID: "order-1", Status: models.PaymentStatusCaptured, Amount: "99.99", Currency: "USD",
	}, nil
}

func (s *stubSettlementMgr) VerifyPayment(_ context.Context, _ string) (*settlement.VerifyResult, error) {
	return &settlement.VerifyResult{Verified: true, Status: models.PaymentStatusCaptured}, nil
}

func (s *stubSettlementMgr) GetPaymentDetails(_ context.Context, _ string) (*settlement.PaymentView, error) {
	return &settlement.PaymentView{ID: "pay-1", Status: models.PaymentStatusCaptured, Amount: "99.99", Currency: "USD"}, nil
}

func (s *stubSettlementMgr) ListUserPayments(_ context.Context, _ string, _ int) ([]*settlement.PaymentView, error) {
	return []*settlement.PaymentView{{ID: "pay-1"}}, nil
}

func (s *stubSettlementMgr) ScanPayments(_ context.Context, _ *settlement.ScanPaymentsRequest) (*settlement.ScanPaymentsResponse, error) {
	panic("not used")
}

func newTestRouter(mgr settlement.SettlementManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterPaymentRoutes(r.Group("/api/v1"), mgr)
	return r
}

func TestApiInitiatePayment_ReturnsApprovalURL(t *testing.T) {
	r := newTestRouter(&stubSettlementMgr{})

	body, _ := json.Marshal(map[string]any{"order_id": "order-1", "user_id": "user-1", "amount": "99.99", "currency": "USD"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/initiate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
	require.Contains(t, w.Body.String(), "checkoutnow?token=PP-1")
}

func TestApiCompletePayment_ErrorShape(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: gateway order PP-x", settlement.ErrPaymentNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: gateway status CREATED", settlement.ErrPaymentNotApproved), http.StatusConflict},
		{fmt.Errorf("%w: declined", settlement.ErrCaptureFailed), http.StatusPaymentRequired},
	}
	for _, tc := range cases {
		r := newTestRouter(&stubSettlementMgr{completeErr: tc.err})

		body, _ := json.Marshal(map[string]any{"gateway_order_id": "PP-x"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/complete", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)
		require.Equal(t, tc.status, w.Code)

		var envelope struct {
			Success bool `json:"success"`
			Error   *struct {
				Message    string `json:"message"`
				StatusCode int    `json:"statusCode"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		require.False(t, envelope.Success)
		require.Equal(t, tc.status, envelope.Error.StatusCode)
		require.NotEmpty(t, envelope.Error.Message)
	}
}

func TestApiCompletePayment_Success(t *testing.T) {
	r := newTestRouter(&stubSettlementMgr{})

	body, _ := json.Marshal(map[string]any{"gateway_order_id": "PP-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/complete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"captured"`)
	require.Contains(t, w.Body.String(), `"amount":"99.99"`)
}

func TestApiListUserPayments_RequiresUserID(t *testing.T) {
	r := newTestRouter(&stubSettlementMgr{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "missing user_id")
}
