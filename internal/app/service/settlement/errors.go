package settlement

import "errors"

var (
	// ErrValidation rejects a request before any gateway or store call.
	ErrValidation = errors.New("settlement: invalid request")
	// ErrPaymentNotFound means no local record matches the given id.
	ErrPaymentNotFound = errors.New("settlement: payment not found")
	// ErrPaymentNotApproved means the gateway order was never approved by the
	// payer; the local record is left untouched.
	ErrPaymentNotApproved = errors.New("settlement: payment not approved by payer")
	// ErrCaptureFailed means the gateway refused or did not complete the capture.
	ErrCaptureFailed = errors.New("settlement: capture failed")
)

// Coarse error codes persisted with failure details.
const (
	errCodeGatewayLookup = "GATEWAY_LOOKUP_FAILED"
	errCodeCaptureFailed = "CAPTURE_FAILED"
	errCodeEncryption    = "ENCRYPTION_FAILED"
)
