package settlement

import (
	"context"
	"time"

	"github.com/lumapay/settlement/internal/app/service/paymentstore"
	models "github.com/lumapay/settlement/internal/models"
	"github.com/lumapay/settlement/internal/platform/paypal"
	"github.com/lumapay/settlement/pkg/types"
)

type InitiateRequest struct {
	OrderID  string `json:"order_id"`
	UserID   string `json:"user_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type InitiateResult struct {
	PaymentID      string               `json:"payment_id"`
	GatewayOrderID string               `json:"gateway_order_id"`
	ApprovalURL    string               `json:"approval_url"`
	Status         models.PaymentStatus `json:"status"`
}

type CompleteResult struct {
	PaymentID string               `json:"payment_id"`
	OrderID   string               `json:"order_id"`
	Status    models.PaymentStatus `json:"status"`
	Amount    string               `json:"amount"`
	Currency  string               `json:"currency"`
}

// VerifyResult reports whether funds were captured. Gateway failures degrade
// to Verified=false with Error populated instead of an error return.
type VerifyResult struct {
	Verified bool                 `json:"verified"`
	Status   models.PaymentStatus `json:"status"`
	Error    string               `json:"error,omitempty"`
}

// PaymentView is the caller-facing projection of a Payment. It never carries
// the encrypted gateway response or the PII hashes.
type PaymentView struct {
	ID             string                      `json:"id"`
	OrderID        string                      `json:"order_id"`
	UserID         string                      `json:"user_id"`
	Amount         string                      `json:"amount"`
	Currency       string                      `json:"currency"`
	Status         models.PaymentStatus        `json:"status"`
	GatewayOrderID *string                     `json:"gateway_order_id"`
	CaptureID      *string                     `json:"capture_id"`
	Metadata       *models.TransactionMetadata `json:"metadata,omitempty"`
	ErrorCode      *string                     `json:"error_code,omitempty"`
	ErrorMessage   *string                     `json:"error_message,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
	CompletedAt    *time.Time                  `json:"completed_at,omitempty"`
}

// SettlementManager drives a payment through the gateway and keeps the local
// record authoritative for what this service has done.
type SettlementManager interface {
	// Create the local record and the gateway order; payer approval happens
	// outside this service via the returned approval URL.
	InitiatePayment(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)
	// Capture an approved gateway order, at most once per payment.
	CompletePayment(ctx context.Context, gatewayOrderID string) (*CompleteResult, error)
	// Read-only capture check; consults the gateway only when the local
	// record is not already captured.
	VerifyPayment(ctx context.Context, paymentID string) (*VerifyResult, error)
	// Caller-facing projection of a payment.
	GetPaymentDetails(ctx context.Context, paymentID string) (*PaymentView, error)
	// Bounded newest-first listing for a user.
	ListUserPayments(ctx context.Context, userID string, limit int) ([]*PaymentView, error)
	// Scan payments (used by admin list pages).
	ScanPayments(ctx context.Context, req *ScanPaymentsRequest) (*ScanPaymentsResponse, error)
}

// Scan payment request/response.
type ScanPaymentsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanPaymentsResponse struct {
	Items []*PaymentView `json:"items"`
	Total int64          `json:"total"`
}

// RecordStore is the durable store the orchestrator persists through.
type RecordStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error)
	UpdateGatewayOrderID(ctx context.Context, id, gatewayOrderID string) error
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error
	StoreCaptureDetails(ctx context.Context, id string, details *paymentstore.CaptureDetails) error
	StoreFailureDetails(ctx context.Context, id, errorCode, errorMessage string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Payment, error)
}

// Gateway is the external processor boundary.
type Gateway interface {
	CreateOrder(ctx context.Context, orderID, amount, currency, description string) (*paypal.OrderResult, error)
	CaptureOrder(ctx context.Context, gatewayOrderID string) (*paypal.CaptureResult, error)
	GetOrder(ctx context.Context, gatewayOrderID string) (*paypal.OrderDetails, error)
}

// Vault hashes PII and encrypts gateway responses for audit storage.
type Vault interface {
	Hash(plaintext string) string
	Encrypt(value any) (string, error)
}

// IDGenerator produces payment ids; injected so tests can be deterministic.
type IDGenerator interface {
	NewID() string
}
