package settlement

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/lumapay/settlement/internal/app/service/paymentstore"
	models "github.com/lumapay/settlement/internal/models"
	"github.com/lumapay/settlement/internal/platform/paypal"
	"github.com/lumapay/settlement/pkg/cryptovault"
)

type fakeStore struct {
	payments     map[string]*models.Payment
	failureCalls int
	failFailure  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{payments: map[string]*models.Payment{}}
}

func (f *fakeStore) Create(_ context.Context, p *models.Payment) error {
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*models.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, paymentstore.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetByGatewayOrderID(_ context.Context, gatewayOrderID string) (*models.Payment, error) {
	for _, p := range f.payments {
		if p.PayPalOrderID != nil && *p.PayPalOrderID == gatewayOrderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, paymentstore.ErrNotFound
}

func (f *fakeStore) UpdateGatewayOrderID(_ context.Context, id, gatewayOrderID string) error {
	p, ok := f.payments[id]
	if !ok {
		return paymentstore.ErrNotFound
	}
	p.PayPalOrderID = lo.ToPtr(gatewayOrderID)
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, status models.PaymentStatus) error {
	p, ok := f.payments[id]
	if !ok {
		return paymentstore.ErrNotFound
	}
	if !p.Status.CanTransitionTo(status) {
		return paymentstore.ErrInvalidTransition
	}
	p.Status = status
	return nil
}

func (f *fakeStore) StoreCaptureDetails(_ context.Context, id string, details *paymentstore.CaptureDetails) error {
	p, ok := f.payments[id]
	if !ok {
		return paymentstore.ErrNotFound
	}
	p.PayPalCaptureID = lo.ToPtr(details.CaptureID)
	p.EncryptedResponse = lo.ToPtr(details.EncryptedResponse)
	p.PayerEmailHash = lo.ToPtr(details.PayerEmailHash)
	p.PayerIDHash = lo.ToPtr(details.PayerIDHash)
	p.Status = models.PaymentStatusCaptured
	if details.Metadata != nil {
		p.Metadata = datatypes.NewJSONType(details.Metadata)
	}
	return nil
}

func (f *fakeStore) StoreFailureDetails(_ context.Context, id, errorCode, errorMessage string) error {
	f.failureCalls++
	if f.failFailure {
		return errors.New("storage down")
	}
	p, ok := f.payments[id]
	if !ok {
		return paymentstore.ErrNotFound
	}
	p.Status = models.PaymentStatusFailed
	p.ErrorCode = lo.ToPtr(errorCode)
	p.ErrorMessage = lo.ToPtr(errorMessage)
	return nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID string, _ int) ([]*models.Payment, error) {
	var out []*models.Payment
	for _, p := range f.payments {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeGateway struct {
	createResult *paypal.OrderResult
	createErr    error
	createCalls  int

	detailsSeq []*paypal.OrderDetails
	detailsErr error
	getCalls   int

	captureResult *paypal.CaptureResult
	captureErr    error
	captureCalls  int
}

func (f *fakeGateway) CreateOrder(_ context.Context, _, _, _, _ string) (*paypal.OrderResult, error) {
	f.createCalls++
	return f.createResult, f.createErr
}

func (f *fakeGateway) CaptureOrder(_ context.Context, _ string) (*paypal.CaptureResult, error) {
	f.captureCalls++
	return f.captureResult, f.captureErr
}

func (f *fakeGateway) GetOrder(_ context.Context, _ string) (*paypal.OrderDetails, error) {
	f.getCalls++
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	if len(f.detailsSeq) == 0 {
		return nil, &paypal.LookupError{StatusCode: 404}
	}
	d := f.detailsSeq[0]
	if len(f.detailsSeq) > 1 {
		f.detailsSeq = f.detailsSeq[1:]
	}
	return d, nil
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() string { return f.id }

func testVault(t *testing.T) *cryptovault.Vault {
	t.Helper()
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	v, err := cryptovault.New(key)
	require.NoError(t, err)
	return v
}

func newTestService(t *testing.T, store *fakeStore, gw *fakeGateway) (SettlementManager, *cryptovault.Vault) {
	t.Helper()
	vault := testVault(t)
	return NewService(zap.NewNop().Sugar(), store, gw, vault, fixedIDs{id: "pay-1"}, nil), vault
}

func seedInitiated(store *fakeStore, gatewayOrderID string) *models.Payment {
	p := &models.Payment{
		ID:       "pay-1",
		OrderID:  "order-1",
		UserID:   "user-1",
		Amount:   "99.99",
		Currency: "USD",
		Status:   models.PaymentStatusInitiated,
	}
	if gatewayOrderID != "" {
		p.PayPalOrderID = lo.ToPtr(gatewayOrderID)
	}
	store.payments[p.ID] = p
	return p
}

func approvedDetails() *paypal.OrderDetails {
	return &paypal.OrderDetails{
		OrderID:  "PP-1",
		Status:   paypal.OrderStatusApproved,
		Amount:   "99.99",
		Currency: "USD",
	}
}

func completedDetails() *paypal.OrderDetails {
	return &paypal.OrderDetails{
		OrderID:    "PP-1",
		Status:     paypal.OrderStatusCompleted,
		Amount:     "99.99",
		Currency:   "USD",
		CaptureID:  "CAP-1",
		PayerEmail: "payer@example.com",
		PayerID:    "PAYER-9",
		Raw:        json.RawMessage(`{"id":"PP-1","status":"COMPLETED"}`),
	}
}

func completedCapture() *paypal.CaptureResult {
	return &paypal.CaptureResult{
		CaptureID:  "CAP-1",
		Status:     paypal.OrderStatusCompleted,
		Amount:     "99.99",
		Currency:   "USD",
		PayerEmail: "payer@example.com",
		PayerID:    "PAYER-9",
		Raw:        json.RawMessage(`{"id":"PP-1","status":"COMPLETED"}`),
	}
}

func TestInitiatePayment_HappyPath(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{createResult: &paypal.OrderResult{
		OrderID:     "PP-1",
		Status:      paypal.OrderStatusCreated,
		ApprovalURL: "https://www.example.com/checkoutnow?token=PP-1",
	}}
	svc, _ := newTestService(t, store, gw)

	res, err := svc.InitiatePayment(context.Background(), &InitiateRequest{
		OrderID: "order-1", UserID: "user-1", Amount: "99.99", Currency: "usd",
	})
	require.NoError(t, err)
	require.Equal(t, "pay-1", res.PaymentID)
	require.Equal(t, "PP-1", res.GatewayOrderID)
	require.Equal(t, "https://www.example.com/checkoutnow?token=PP-1", res.ApprovalURL)
	require.Equal(t, models.PaymentStatusInitiated, res.Status)

	p := store.payments["pay-1"]
	require.Equal(t, models.PaymentStatusInitiated, p.Status)
	require.Equal(t, "PP-1", *p.PayPalOrderID)
	require.Equal(t, "USD", p.Currency)
}

func TestInitiatePayment_Validation(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(t, store, gw)

	cases := []*InitiateRequest{
		nil,
		{UserID: "u", Amount: "1", Currency: "USD"},
		{OrderID: "o", Amount: "1", Currency: "USD"},
		{OrderID: "o", UserID: "u", Amount: "1", Currency: "dollars"},
		{OrderID: "o", UserID: "u", Amount: "", Currency: "USD"},
		{OrderID: "o", UserID: "u", Amount: "-5", Currency: "USD"},
		{OrderID: "o", UserID: "u", Amount: "abc", Currency: "USD"},
	}
	for _, req := range cases {
		_, err := svc.InitiatePayment(context.Background(), req)
		require.ErrorIs(t, err, ErrValidation)
	}
	require.Zero(t, gw.createCalls)
	require.Empty(t, store.payments)
}

func TestInitiatePayment_GatewayFailureLeavesRecordInitiated(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{createErr: &paypal.OrderError{StatusCode: 422, Body: `{"name":"UNPROCESSABLE_ENTITY"}`}}
	svc, _ := newTestService(t, store, gw)

	_, err := svc.InitiatePayment(context.Background(), &InitiateRequest{
		OrderID: "order-1", UserID: "user-1", Amount: "99.99", Currency: "USD",
	})
	var orderErr *paypal.OrderError
	require.ErrorAs(t, err, &orderErr)

	p := store.payments["pay-1"]
	require.Equal(t, models.PaymentStatusInitiated, p.Status)
	require.Nil(t, p.PayPalOrderID)
}

func TestCompletePayment_UnknownGatewayOrder(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(t, store, gw)

	_, err := svc.CompletePayment(context.Background(), "PP-unknown")
	require.ErrorIs(t, err, ErrPaymentNotFound)
	require.Zero(t, gw.getCalls)
	require.Zero(t, store.failureCalls)
}

func TestCompletePayment_HappyPathThenIdempotentRepeat(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{
		detailsSeq:    []*paypal.OrderDetails{approvedDetails()},
		captureResult: completedCapture(),
	}
	svc, vault := newTestService(t, store, gw)
	seedInitiated(store, "PP-1")

	first, err := svc.CompletePayment(context.Background(), "PP-1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCaptured, first.Status)
	require.Equal(t, "99.99", first.Amount)
	require.Equal(t, "USD", first.Currency)
	require.Equal(t, "order-1", first.OrderID)

	p := store.payments["pay-1"]
	require.Equal(t, models.PaymentStatusCaptured, p.Status)
	require.Equal(t, "CAP-1", *p.PayPalCaptureID)
	require.Equal(t, vault.Hash("payer@example.com"), *p.PayerEmailHash)
	require.Equal(t, vault.Hash("PAYER-9"), *p.PayerIDHash)
	require.NotEmpty(t, *p.EncryptedResponse)

	// audit blob decrypts back to the gateway response
	var audit map[string]any
	require.NoError(t, vault.Decrypt(*p.EncryptedResponse, &audit))
	require.Equal(t, "PP-1", audit["id"])

	// second completion returns the identical result without another gateway call
	second, err := svc.CompletePayment(context.Background(), "PP-1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, gw.captureCalls)
	require.Equal(t, 1, gw.getCalls)
}

func TestCompletePayment_RemoteCompletedReconcilesWithoutSecondCapture(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{detailsSeq: []*paypal.OrderDetails{completedDetails()}}
	svc, _ := newTestService(t, store, gw)
	seedInitiated(store, "PP-1")

	res, err := svc.CompletePayment(context.Background(), "PP-1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCaptured, res.Status)
	require.Zero(t, gw.captureCalls)

	p := store.payments["pay-1"]
	require.Equal(t, models.PaymentStatusCaptured, p.Status)
	require.Equal(t, "CAP-1", *p.PayPalCaptureID)
}

func TestCompletePayment_NotApprovedLeavesRecordUntouched(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{detailsSeq: []*paypal.OrderDetails{{OrderID: "PP-1", Status: paypal.OrderStatusCreated}}}
	svc, _ := newTestService(t, store, gw)
	seedInitiated(store, "PP-1")

	_, err := svc.CompletePayment(context.Background(), "PP-1")
	require.ErrorIs(t, err, ErrPaymentNotApproved)
	require.Contains(t, err.Error(), paypal.OrderStatusCreated)
	require.Zero(t, gw.captureCalls)
	require.Zero(t, store.failureCalls)
	require.Equal(t, models.PaymentStatusInitiated, store.payments["pay-1"].Status)
}

func TestCompletePayment_CaptureRejectionReconciledViaRequery(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{
		detailsSeq: []*paypal.OrderDetails{approvedDetails(), completedDetails()},
		captureErr: &paypal.CaptureError{
			StatusCode: 422, IssueCode: "ORDER_ALREADY_CAPTURED", Description: "Order already captured.",
		},
	}
	svc, _ := newTestService(t, store, gw)
	seedInitiated(store, "PP-1")

	res, err := svc.CompletePayment(context.Background(), "PP-1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCaptured, res.Status)
	require.Equal(t, 2, gw.getCalls)
	require.Zero(t, store.failureCalls)
	require.Equal(t, "CAP-1", *store.payments["pay-1"].PayPalCaptureID)
}

func TestCompletePayment_CaptureRejectionNotReconciledPropagates(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{
		detailsSeq: []*paypal.OrderDetails{approvedDetails(), approvedDetails()},
		captureErr: &paypal.CaptureError{
			StatusCode: 422, IssueCode: "INSTRUMENT_DECLINED", Description: "The instrument was declined.",
		},
	}
	svc, _ := newTestService(t, store, gw)
	seedInitiated(store, "PP-1")

	_, err := svc.CompletePayment(context.Background(), "PP-1")
	require.ErrorIs(t, err, ErrCaptureFailed)
	var capErr *paypal.CaptureError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, "INSTRUMENT_DECLINED", capErr.IssueCode)

	p := store.payments["pay-1"]
	require.Equal(t, models.PaymentStatusFailed, p.Status)
	require.Equal(t, "CAPTURE_FAILED", *p.ErrorCode)
}

func TestCompletePayment_CaptureTimeoutIsRetryable(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{
		detailsSeq: []*paypal.OrderDetails{approvedDetails()},
		captureErr: fmt.Errorf("%w: context deadline exceeded", paypal.ErrTimeout),
	}
	svc, _ := newTestService(t, store, gw)
	seedInitiated(store, "PP-1")

	_, err := svc.CompletePayment(context.Background(), "PP-1")
	require.ErrorIs(t, err, paypal.ErrTimeout)
	// no failure write so a retry can still settle
	require.Zero(t, store.failureCalls)
	require.Equal(t, models.PaymentStatusApproved, store.payments["pay-1"].Status)
}

func TestCompletePayment_FailurePersistenceNeverMasksOriginalError(t *testing.T) {
	store := newFakeStore()
	store.failFailure = true
	gw := &fakeGateway{
		detailsSeq: []*paypal.OrderDetails{approvedDetails(), approvedDetails()},
		captureErr: &paypal.CaptureError{StatusCode: 500, Body: "internal"},
	}
	svc, _ := newTestService(t, store, gw)
	seedInitiated(store, "PP-1")

	_, err := svc.CompletePayment(context.Background(), "PP-1")
	require.ErrorIs(t, err, ErrCaptureFailed)
	require.Equal(t, 1, store.failureCalls)
}

func TestVerifyPayment(t *testing.T) {
	t.Run("captured locally skips the gateway", func(t *testing.T) {
		store := newFakeStore()
		gw := &fakeGateway{}
		svc, _ := newTestService(t, store, gw)
		p := seedInitiated(store, "PP-1")
		p.Status = models.PaymentStatusCaptured

		res, err := svc.VerifyPayment(context.Background(), "pay-1")
		require.NoError(t, err)
		require.True(t, res.Verified)
		require.Zero(t, gw.getCalls)
	})

	t.Run("no gateway order id", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newTestService(t, store, &fakeGateway{})
		seedInitiated(store, "")

		res, err := svc.VerifyPayment(context.Background(), "pay-1")
		require.NoError(t, err)
		require.False(t, res.Verified)
		require.Equal(t, models.PaymentStatusInitiated, res.Status)
	})

	t.Run("gateway completed", func(t *testing.T) {
		store := newFakeStore()
		gw := &fakeGateway{detailsSeq: []*paypal.OrderDetails{completedDetails()}}
		svc, _ := newTestService(t, store, gw)
		seedInitiated(store, "PP-1")

		res, err := svc.VerifyPayment(context.Background(), "pay-1")
		require.NoError(t, err)
		require.True(t, res.Verified)
	})

	t.Run("gateway failure degrades to unverified", func(t *testing.T) {
		store := newFakeStore()
		gw := &fakeGateway{detailsErr: &paypal.LookupError{StatusCode: 503, Body: "unavailable"}}
		svc, _ := newTestService(t, store, gw)
		seedInitiated(store, "PP-1")

		res, err := svc.VerifyPayment(context.Background(), "pay-1")
		require.NoError(t, err)
		require.False(t, res.Verified)
		require.Contains(t, res.Error, "503")
	})

	t.Run("unknown payment", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newTestService(t, store, &fakeGateway{})
		_, err := svc.VerifyPayment(context.Background(), "missing")
		require.ErrorIs(t, err, ErrPaymentNotFound)
	})
}

func TestGetPaymentDetails_OmitsAuditAndPII(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store, &fakeGateway{})
	p := seedInitiated(store, "PP-1")
	p.Status = models.PaymentStatusCaptured
	p.PayPalCaptureID = lo.ToPtr("CAP-1")
	p.EncryptedResponse = lo.ToPtr("ciphertext")
	p.PayerEmailHash = lo.ToPtr("email-hash")
	p.PayerIDHash = lo.ToPtr("payer-hash")

	view, err := svc.GetPaymentDetails(context.Background(), "pay-1")
	require.NoError(t, err)
	require.Equal(t, "pay-1", view.ID)
	require.Equal(t, "CAP-1", *view.CaptureID)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "ciphertext")
	require.NotContains(t, string(raw), "email-hash")
	require.NotContains(t, string(raw), "payer-hash")
	require.NotContains(t, string(raw), "encrypted_response")
	require.NotContains(t, string(raw), "payer_email_hash")
	require.NotContains(t, string(raw), "payer_id_hash")
}

func TestListUserPayments(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store, &fakeGateway{})
	seedInitiated(store, "PP-1")

	views, err := svc.ListUserPayments(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, views, 1)

	_, err = svc.ListUserPayments(context.Background(), "", 10)
	require.ErrorIs(t, err, ErrValidation)
}
