package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusCaptured  PaymentStatus = "captured"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// statusRank orders the payment lifecycle. Transitions never move to a lower
// rank; captured and failed are terminal.
var statusRank = map[PaymentStatus]int{
	PaymentStatusInitiated: 0,
	PaymentStatusApproved:  1,
	PaymentStatusCaptured:  2,
	PaymentStatusFailed:    2,
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	if s == PaymentStatusCaptured || s == PaymentStatusFailed {
		return false
	}
	return nxt > cur
}

// TransactionMetadata is the non-sensitive capture summary stored alongside
// the encrypted gateway response so that listings never need to decrypt.
type TransactionMetadata struct {
	CaptureID     string    `json:"capture_id"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	GatewayStatus string    `json:"gateway_status"`
	CapturedAt    time.Time `json:"captured_at"`
}

// Payment 单次支付的本地留痕记录
type Payment struct {
	ID      string `gorm:"column:id;primary_key;type:uuid;index:idx_user_id_id,priority:2,sort:desc" json:"id"`
	OrderID string `gorm:"column:order_id;type:varchar(64);not null;index:idx_order_id" json:"order_id"`
	UserID  string `gorm:"column:user_id;type:varchar(64);not null;index:idx_user_id_id,priority:1" json:"user_id"`
	// Amount 按原样保存的十进制金额，仅发送给网关时才格式化为两位小数
	Amount   string        `gorm:"column:amount;type:varchar(32);not null" json:"amount"`
	Currency string        `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status   PaymentStatus `gorm:"column:status;type:varchar(16);not null;index:idx_status" json:"status"`
	// PayPalOrderID 网关订单号，网关下单成功前为null
	PayPalOrderID *string `gorm:"column:paypal_order_id;type:varchar(64);index:idx_paypal_order_id" json:"paypal_order_id"`
	// PayPalCaptureID 网关扣款号，扣款成功前为null
	PayPalCaptureID *string `gorm:"column:paypal_capture_id;type:varchar(64)" json:"paypal_capture_id"`
	// EncryptedResponse 网关完整响应的密文，仅用于审计与争议处理
	EncryptedResponse *string `gorm:"column:encrypted_response;type:text" json:"-"`
	// PayerEmailHash / PayerIDHash 付款人PII的单向哈希，永不保存明文
	PayerEmailHash *string `gorm:"column:payer_email_hash;type:varchar(64)" json:"-"`
	PayerIDHash    *string `gorm:"column:payer_id_hash;type:varchar(64)" json:"-"`

	Metadata datatypes.JSONType[*TransactionMetadata] `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`

	ErrorCode    *string `gorm:"column:error_code;type:varchar(64)" json:"error_code"`
	ErrorMessage *string `gorm:"column:error_message;type:text" json:"error_message"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at;default:null" json:"completed_at"`
}

func (Payment) TableName() string {
	return "payment"
}

func (p *Payment) IsCaptured() bool {
	return p != nil && p.Status == PaymentStatusCaptured
}

func (p *Payment) GetMetadata() *TransactionMetadata {
	if p == nil {
		return nil
	}
	return p.Metadata.Data()
}
