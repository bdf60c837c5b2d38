package handlers

import (
	"github.com/lumapay/settlement/internal/app/service/settlement"
	"github.com/lumapay/settlement/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Success bool               `json:"success"`
	Data    interface{}        `json:"data"`
	Error   *response.APIError `json:"error,omitempty"`
}

// RespInitiate wraps InitiateResult in the standard envelope.
type RespInitiate struct {
	Success bool                      `json:"success"`
	Data    settlement.InitiateResult `json:"data"`
	Error   *response.APIError        `json:"error,omitempty"`
}

// RespComplete wraps CompleteResult in the standard envelope.
type RespComplete struct {
	Success bool                      `json:"success"`
	Data    settlement.CompleteResult `json:"data"`
	Error   *response.APIError        `json:"error,omitempty"`
}

// RespVerify wraps VerifyResult in the standard envelope.
type RespVerify struct {
	Success bool                    `json:"success"`
	Data    settlement.VerifyResult `json:"data"`
	Error   *response.APIError      `json:"error,omitempty"`
}

// RespPaymentView wraps a single PaymentView in the standard envelope.
type RespPaymentView struct {
	Success bool                    `json:"success"`
	Data    settlement.PaymentView  `json:"data"`
	Error   *response.APIError      `json:"error,omitempty"`
}

// RespPaymentList wraps a list of PaymentView in the standard envelope.
type RespPaymentList struct {
	Success bool                     `json:"success"`
	Data    []settlement.PaymentView `json:"data"`
	Error   *response.APIError       `json:"error,omitempty"`
}

// RespScanPayments wraps ScanPaymentsResponse in the standard envelope.
type RespScanPayments struct {
	Success bool                            `json:"success"`
	Data    settlement.ScanPaymentsResponse `json:"data"`
	Error   *response.APIError              `json:"error,omitempty"`
}
