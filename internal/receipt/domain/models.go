package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "PENDING"
	DeliveryStatusSent    DeliveryStatus = "SENT"
	DeliveryStatusFailed  DeliveryStatus = "FAILED"
)

// Channel identifies one of the three independent status machines on a
// receipt.
type Channel string

const (
	ChannelPayment Channel = "payment"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
)

// Receipt is an issued acknowledgment-of-payment record. Identity and
// descriptive fields are immutable once issued; only the three channel
// status fields ever change, each at most once.
type Receipt struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID    `gorm:"column:org_id;not null;index" json:"organization_id"`
	ReceiptNumber string          `gorm:"column:receipt_number;type:text;not null;uniqueIndex:ux_receipts_number" json:"receipt_number"`
	Payer         string          `gorm:"not null" json:"payer"`
	PayerEmail    string          `gorm:"column:payer_email" json:"payer_email,omitempty"`
	PayerPhone    string          `gorm:"column:payer_phone" json:"payer_phone,omitempty"`
	Purpose       string          `gorm:"not null" json:"purpose"`
	CategoryID    snowflake.ID    `gorm:"column:category_id;not null" json:"category_id"`
	TemplateID    snowflake.ID    `gorm:"column:template_id;not null" json:"template_id"`
	IssuedBy      string          `gorm:"column:issued_by;not null" json:"issued_by"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	AmountInWords string          `gorm:"column:amount_in_words;not null" json:"amount_in_words"`
	IssuedAt      time.Time       `gorm:"column:issued_at;not null" json:"issued_at"`
	Payload       string          `gorm:"column:verification_payload;type:text;not null" json:"verification_payload"`
	PaymentStatus PaymentStatus   `gorm:"column:payment_status;not null;default:'PENDING'" json:"payment_status"`
	EmailStatus   DeliveryStatus  `gorm:"column:email_status;not null;default:'PENDING'" json:"email_status"`
	SMSStatus     DeliveryStatus  `gorm:"column:sms_status;not null;default:'PENDING'" json:"sms_status"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Receipt) TableName() string { return "receipts" }

// StatusFor returns the receipt's current status on a channel, as a
// plain string so callers can compare across the two status enums.
func (r Receipt) StatusFor(channel Channel) string {
	switch channel {
	case ChannelPayment:
		return string(r.PaymentStatus)
	case ChannelEmail:
		return string(r.EmailStatus)
	case ChannelSMS:
		return string(r.SMSStatus)
	default:
		return ""
	}
}

// ReceiptSequence backs receipt-number generation. One row per
// organization and issue year; last_seq only moves forward.
type ReceiptSequence struct {
	OrgID     snowflake.ID `gorm:"column:org_id;primaryKey"`
	Year      int          `gorm:"primaryKey"`
	LastSeq   int64        `gorm:"column:last_seq;not null;default:0"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ReceiptSequence) TableName() string { return "receipt_sequences" }

// TerminalSuccessStatus returns the terminal success value for a channel.
func TerminalSuccessStatus(channel Channel) string {
	if channel == ChannelPayment {
		return string(PaymentStatusCompleted)
	}
	return string(DeliveryStatusSent)
}

// TerminalFailureStatus returns the terminal failure value for a channel.
func TerminalFailureStatus(channel Channel) string {
	if channel == ChannelPayment {
		return string(PaymentStatusFailed)
	}
	return string(DeliveryStatusFailed)
}

// IsPending reports whether a channel status value is the initial state.
func IsPending(status string) bool {
	return status == string(PaymentStatusPending)
}

// IsTerminal reports whether a channel status value can never change again.
func IsTerminal(status string) bool {
	switch status {
	case string(PaymentStatusCompleted), string(PaymentStatusFailed), string(DeliveryStatusSent):
		return true
	default:
		return false
	}
}

// CanTransition reports whether a channel may move from one status to
// another. The only legal edge is pending to a terminal state; terminal
// states never change.
func CanTransition(channel Channel, from, to string) bool {
	if !IsPending(from) {
		return false
	}
	switch channel {
	case ChannelPayment:
		return to == string(PaymentStatusCompleted) || to == string(PaymentStatusFailed)
	case ChannelEmail, ChannelSMS:
		return to == string(DeliveryStatusSent) || to == string(DeliveryStatusFailed)
	default:
		return false
	}
}

// ParseChannel validates a channel name from the API boundary.
func ParseChannel(raw string) (Channel, bool) {
	switch Channel(raw) {
	case ChannelPayment:
		return ChannelPayment, true
	case ChannelEmail:
		return ChannelEmail, true
	case ChannelSMS:
		return ChannelSMS, true
	default:
		return "", false
	}
}
