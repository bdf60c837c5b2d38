package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumapay/settlement/internal/app/service/paymentstore"
	models "github.com/lumapay/settlement/internal/models"
	"github.com/lumapay/settlement/internal/platform/paypal"
	"github.com/lumapay/settlement/pkg/logctx"
	"github.com/lumapay/settlement/pkg/metrics"
	types "github.com/lumapay/settlement/pkg/types"
)

// Service is the settlement state machine: initiated -> approved -> captured,
// or -> failed. Capture happens at most once per payment: a locally captured
// record short-circuits, and before any capture the gateway's own view is
// treated as the source of truth.
type Service struct {
	log     *zap.SugaredLogger
	store   RecordStore
	gateway Gateway
	vault   Vault
	ids     IDGenerator
	db      *gorm.DB
}

func NewService(log *zap.SugaredLogger, store RecordStore, gateway Gateway, vault Vault, ids IDGenerator, db *gorm.DB) SettlementManager {
	return &Service{log: log, store: store, gateway: gateway, vault: vault, ids: ids, db: db}
}

func (s *Service) InitiatePayment(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	start := time.Now()
	if err := validateInitiate(req); err != nil {
		return nil, err
	}

	p := &models.Payment{
		ID:       s.ids.NewID(),
		OrderID:  req.OrderID,
		UserID:   req.UserID,
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		Status:   models.PaymentStatusInitiated,
	}
	if err := s.store.Create(ctx, p); err != nil {
		metrics.ObserveSettlementOp("initiate", "error", start)
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, req.OrderID, req.Amount, p.Currency, "Order "+req.OrderID)
	if err != nil {
		// The local record stays initiated with no gateway id; the caller may
		// retry initiation with the same order id.
		logctx.FromCtx(ctx, s.log).Errorw("gateway order creation failed", "payment_id", p.ID, "order_id", req.OrderID, "err", err)
		metrics.ObserveSettlementOp("initiate", "gateway_error", start)
		return nil, err
	}

	if err := s.store.UpdateGatewayOrderID(ctx, p.ID, order.OrderID); err != nil {
		metrics.ObserveSettlementOp("initiate", "error", start)
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("payment initiated",
		"payment_id", p.ID, "order_id", req.OrderID, "gateway_order_id", order.OrderID)
	metrics.ObserveSettlementOp("initiate", "ok", start)

	return &InitiateResult{
		PaymentID:      p.ID,
		GatewayOrderID: order.OrderID,
		ApprovalURL:    order.ApprovalURL,
		Status:         models.PaymentStatusInitiated,
	}, nil
}

func (s *Service) CompletePayment(ctx context.Context, gatewayOrderID string) (*CompleteResult, error) {
	start := time.Now()
	if gatewayOrderID == "" {
		return nil, fmt.Errorf("%w: gateway order id is required", ErrValidation)
	}

	p, err := s.store.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, paymentstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: gateway order %s", ErrPaymentNotFound, gatewayOrderID)
		}
		return nil, err
	}

	// Already captured locally: return the stored result without touching the
	// gateway again.
	if p.IsCaptured() {
		logctx.FromCtx(ctx, s.log).Infow("payment already captured, returning stored result", "payment_id", p.ID)
		metrics.ObserveSettlementOp("complete", "idempotent_hit", start)
		return capturedResult(p), nil
	}

	details, err := s.gateway.GetOrder(ctx, gatewayOrderID)
	if err != nil {
		if !errors.Is(err, paypal.ErrTimeout) {
			s.persistFailure(ctx, p, errCodeGatewayLookup, err)
		}
		metrics.ObserveSettlementOp("complete", "lookup_error", start)
		return nil, err
	}

	// The gateway already captured but a previous local write never landed:
	// adopt the gateway's capture, do not capture a second time.
	if details.Status == paypal.OrderStatusCompleted {
		logctx.FromCtx(ctx, s.log).Infow("gateway order already completed, reconciling local record",
			"payment_id", p.ID, "gateway_order_id", gatewayOrderID, "capture_id", details.CaptureID)
		res, err := s.finalizeCapture(ctx, p, captureFromDetails(details))
		metrics.ObserveSettlementOp("complete", outcomeLabel(err), start)
		return res, err
	}

	if details.Status != paypal.OrderStatusApproved {
		metrics.ObserveSettlementOp("complete", "not_approved", start)
		return nil, fmt.Errorf("%w: gateway status %s", ErrPaymentNotApproved, details.Status)
	}

	// Record the approval before capturing so a crash between the two calls
	// leaves the record in the state the gateway reported.
	if p.Status == models.PaymentStatusInitiated {
		if err := s.store.UpdateStatus(ctx, p.ID, models.PaymentStatusApproved); err != nil {
			metrics.ObserveSettlementOp("complete", "error", start)
			return nil, err
		}
	}

	capRes, err := s.gateway.CaptureOrder(ctx, gatewayOrderID)
	if err != nil {
		res, rerr := s.handleCaptureError(ctx, p, gatewayOrderID, err)
		metrics.ObserveSettlementOp("complete", outcomeLabel(rerr), start)
		return res, rerr
	}
	if capRes.Status != paypal.OrderStatusCompleted {
		err := fmt.Errorf("%w: capture returned status %s", ErrCaptureFailed, capRes.Status)
		s.persistFailure(ctx, p, errCodeCaptureFailed, err)
		metrics.ObserveSettlementOp("complete", "capture_failed", start)
		return nil, err
	}

	res, err := s.finalizeCapture(ctx, p, capRes)
	metrics.ObserveSettlementOp("complete", outcomeLabel(err), start)
	return res, err
}

// handleCaptureError resolves the double-capture race: when two completions
// tie, the gateway rejects the second capture. Re-query once and treat a
// COMPLETED order as success instead of surfacing the rejection.
func (s *Service) handleCaptureError(ctx context.Context, p *models.Payment, gatewayOrderID string, capErr error) (*CompleteResult, error) {
	if errors.Is(capErr, paypal.ErrTimeout) {
		// Retryable; the capture may or may not have happened, so no local
		// failure write.
		return nil, capErr
	}

	var gwErr *paypal.CaptureError
	if errors.As(capErr, &gwErr) {
		details, err := s.gateway.GetOrder(ctx, gatewayOrderID)
		if err == nil && details.Status == paypal.OrderStatusCompleted {
			logctx.FromCtx(ctx, s.log).Infow("capture rejected but gateway order completed, reconciling",
				"payment_id", p.ID, "gateway_order_id", gatewayOrderID, "issue", gwErr.IssueCode)
			return s.finalizeCapture(ctx, p, captureFromDetails(details))
		}
	}

	err := fmt.Errorf("%w: %w", ErrCaptureFailed, capErr)
	s.persistFailure(ctx, p, errCodeCaptureFailed, err)
	return nil, err
}

// finalizeCapture hashes payer PII, encrypts the full gateway response and
// persists everything in one store write.
func (s *Service) finalizeCapture(ctx context.Context, p *models.Payment, capRes *paypal.CaptureResult) (*CompleteResult, error) {
	encrypted, err := s.vault.Encrypt(json.RawMessage(capRes.Raw))
	if err != nil {
		s.persistFailure(ctx, p, errCodeEncryption, err)
		return nil, err
	}

	amount := capRes.Amount
	currency := capRes.Currency
	if amount == "" {
		amount = p.Amount
	}
	if currency == "" {
		currency = p.Currency
	}

	details := &paymentstore.CaptureDetails{
		CaptureID:         capRes.CaptureID,
		EncryptedResponse: encrypted,
		PayerEmailHash:    s.vault.Hash(capRes.PayerEmail),
		PayerIDHash:       s.vault.Hash(capRes.PayerID),
		Metadata: &models.TransactionMetadata{
			CaptureID:     capRes.CaptureID,
			Amount:        amount,
			Currency:      currency,
			GatewayStatus: capRes.Status,
			CapturedAt:    time.Now(),
		},
	}
	if err := s.store.StoreCaptureDetails(ctx, p.ID, details); err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("payment captured",
		"payment_id", p.ID, "order_id", p.OrderID, "capture_id", capRes.CaptureID, "amount", amount, "currency", currency)

	return &CompleteResult{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Status:    models.PaymentStatusCaptured,
		Amount:    amount,
		Currency:  currency,
	}, nil
}

// persistFailure is best-effort audit; its own failure is logged and never
// replaces the original error.
func (s *Service) persistFailure(ctx context.Context, p *models.Payment, code string, cause error) {
	if err := s.store.StoreFailureDetails(ctx, p.ID, code, cause.Error()); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to persist failure details", "payment_id", p.ID, "code", code, "err", err)
	}
}

func (s *Service) VerifyPayment(ctx context.Context, paymentID string) (*VerifyResult, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrValidation)
	}
	p, err := s.store.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, paymentstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, err
	}

	if p.IsCaptured() {
		return &VerifyResult{Verified: true, Status: p.Status}, nil
	}
	if p.PayPalOrderID == nil {
		return &VerifyResult{Verified: false, Status: p.Status}, nil
	}

	details, err := s.gateway.GetOrder(ctx, *p.PayPalOrderID)
	if err != nil {
		// Degrade to unverified; the error is reported, not thrown.
		return &VerifyResult{Verified: false, Status: p.Status, Error: err.Error()}, nil
	}
	return &VerifyResult{
		Verified: details.Status == paypal.OrderStatusCompleted,
		Status:   p.Status,
	}, nil
}

func (s *Service) GetPaymentDetails(ctx context.Context, paymentID string) (*PaymentView, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrValidation)
	}
	p, err := s.store.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, paymentstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, err
	}
	return toPaymentView(p), nil
}

func (s *Service) ListUserPayments(ctx context.Context, userID string, limit int) ([]*PaymentView, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	rows, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]*PaymentView, 0, len(rows))
	for _, p := range rows {
		views = append(views, toPaymentView(p))
	}
	return views, nil
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ScanPayments implements paginated/admin listing with filters.
func (s *Service) ScanPayments(ctx context.Context, req *ScanPaymentsRequest) (*ScanPaymentsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrValidation)
	}
	if s.db == nil {
		return nil, errors.New("settlement: scan requires a database handle")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Payment{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}

	var rows []*models.Payment
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	items := make([]*PaymentView, 0, len(rows))
	for _, p := range rows {
		items = append(items, toPaymentView(p))
	}
	return &ScanPaymentsResponse{Items: items, Total: total}, nil
}

func capturedResult(p *models.Payment) *CompleteResult {
	amount := p.Amount
	currency := p.Currency
	if meta := p.GetMetadata(); meta != nil {
		if meta.Amount != "" {
			amount = meta.Amount
		}
		if meta.Currency != "" {
			currency = meta.Currency
		}
	}
	return &CompleteResult{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Status:    models.PaymentStatusCaptured,
		Amount:    amount,
		Currency:  currency,
	}
}

func captureFromDetails(details *paypal.OrderDetails) *paypal.CaptureResult {
	return &paypal.CaptureResult{
		CaptureID:  details.CaptureID,
		Status:     details.Status,
		Amount:     details.Amount,
		Currency:   details.Currency,
		PayerEmail: details.PayerEmail,
		PayerID:    details.PayerID,
		Raw:        details.Raw,
	}
}

// toPaymentView drops the encrypted blob and the PII hashes.
func toPaymentView(p *models.Payment) *PaymentView {
	return &PaymentView{
		ID:             p.ID,
		OrderID:        p.OrderID,
		UserID:         p.UserID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         p.Status,
		GatewayOrderID: p.PayPalOrderID,
		CaptureID:      p.PayPalCaptureID,
		Metadata:       p.GetMetadata(),
		ErrorCode:      p.ErrorCode,
		ErrorMessage:   p.ErrorMessage,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		CompletedAt:    p.CompletedAt,
	}
}

func validateInitiate(req *InitiateRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", ErrValidation)
	}
	if req.OrderID == "" {
		return fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if req.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if len(req.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(req.Amount), 64)
	if err != nil || amount <= 0 {
		return fmt.Errorf("%w: amount must be a positive decimal", ErrValidation)
	}
	return nil
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
