package paypal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Gateway order statuses as reported by the processor.
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusSaved     = "SAVED"
	OrderStatusApproved  = "APPROVED"
	OrderStatusCompleted = "COMPLETED"
)

// ErrTimeout marks a gateway call that hit its deadline. Retryable; never a
// statement about whether the capture happened.
var ErrTimeout = errors.New("paypal: gateway call timed out")

// AuthError is a failed client-credentials token exchange.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("paypal: token request failed with status %d: %s", e.StatusCode, e.Body)
}

// OrderError is a rejected order creation, carrying the processor's raw payload.
type OrderError struct {
	StatusCode int
	Body       string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("paypal: create order failed with status %d: %s", e.StatusCode, e.Body)
}

// CaptureError is a rejected capture. IssueCode/Description are the
// processor-supplied structured reason when one exists.
type CaptureError struct {
	StatusCode  int
	IssueCode   string
	Description string
	Body        string
}

func (e *CaptureError) Error() string {
	if e.IssueCode != "" {
		return fmt.Sprintf("paypal: capture failed: %s: %s", e.IssueCode, e.Description)
	}
	return fmt.Sprintf("paypal: capture failed with status %d: %s", e.StatusCode, e.Body)
}

// LookupError is an order-status fetch the processor rejected (unknown order id).
type LookupError struct {
	StatusCode int
	Body       string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("paypal: order lookup failed with status %d: %s", e.StatusCode, e.Body)
}

// errorPayload is the processor's error body shape.
type errorPayload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type payer struct {
	PayerID string `json:"payer_id"`
	Email   string `json:"email_address"`
}

type capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount amount `json:"amount"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	Amount      amount `json:"amount"`
	Payments    *struct {
		Captures []capture `json:"captures"`
	} `json:"payments,omitempty"`
}

// OrderResult is the outcome of CreateOrder.
type OrderResult struct {
	OrderID     string
	Status      string
	ApprovalURL string
}

// CaptureResult is the outcome of CaptureOrder, plus the raw response body
// for audit encryption.
type CaptureResult struct {
	CaptureID  string
	Status     string
	Amount     string
	Currency   string
	PayerEmail string
	PayerID    string
	Raw        json.RawMessage
}

// OrderDetails is a read-only view of the gateway's order record. CaptureID
// is set only when the processor already completed the order.
type OrderDetails struct {
	OrderID    string
	Status     string
	Amount     string
	Currency   string
	PayerEmail string
	PayerID    string
	CaptureID  string
	Raw        json.RawMessage
}
