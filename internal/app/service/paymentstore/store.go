package paymentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	models "github.com/lumapay/settlement/internal/models"
)

var (
	ErrNotFound = errors.New("paymentstore: payment not found")
	// ErrInvalidTransition rejects a status write that would move the
	// lifecycle backward or out of a terminal state.
	ErrInvalidTransition = errors.New("paymentstore: invalid status transition")
)

// CaptureDetails is everything a successful capture persists in one write.
type CaptureDetails struct {
	CaptureID         string
	EncryptedResponse string
	PayerEmailHash    string
	PayerIDHash       string
	Metadata          *models.TransactionMetadata
}

// Store is the durable record store for Payment rows. Mutations are keyed by
// payment id and resolve concurrent writers last-write-wins; the settlement
// service is responsible for capture idempotency.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewStore(db *gorm.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Create(ctx context.Context, p *models.Payment) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// GetByOrderID returns the most recent attempt when several rows share an
// order id (callers may retry initiation with the same order).
func (s *Store) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at DESC").First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment by order id: %w", err)
	}
	return &p, nil
}

func (s *Store) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).Where("paypal_order_id = ?", gatewayOrderID).Order("created_at DESC").First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment by gateway order id: %w", err)
	}
	return &p, nil
}

func (s *Store) UpdateGatewayOrderID(ctx context.Context, id, gatewayOrderID string) error {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).
		Update("paypal_order_id", gatewayOrderID)
	if res.Error != nil {
		return fmt.Errorf("failed to update gateway order id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !p.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, status)
	}
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// StoreCaptureDetails sets capture id, audit ciphertext, PII hashes, metadata,
// status and completion time in a single UPDATE.
func (s *Store) StoreCaptureDetails(ctx context.Context, id string, details *CaptureDetails) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(map[string]any{
		"paypal_capture_id":  details.CaptureID,
		"encrypted_response": details.EncryptedResponse,
		"payer_email_hash":   details.PayerEmailHash,
		"payer_id_hash":      details.PayerIDHash,
		"metadata":           datatypes.NewJSONType(details.Metadata),
		"status":             models.PaymentStatusCaptured,
		"completed_at":       lo.ToPtr(now),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to store capture details: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) StoreFailureDetails(ctx context.Context, id, errorCode, errorMessage string) error {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(map[string]any{
		"status":        models.PaymentStatusFailed,
		"error_code":    errorCode,
		"error_message": errorMessage,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to store failure details: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns the user's payments newest-first, bounded by limit.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var rows []*models.Payment
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return rows, nil
}
