package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	receiptdomain "github.com/resibo-ph/resibo/internal/receipt/domain"
)

// DispatchAttempt records one call out to a channel collaborator.
// Retries are new rows; the receipt's channel status still accepts only
// its first terminal write.
type DispatchAttempt struct {
	ID          snowflake.ID          `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID          `gorm:"column:org_id;not null;index" json:"organization_id"`
	ReceiptID   snowflake.ID          `gorm:"column:receipt_id;not null;index" json:"receipt_id"`
	Channel     receiptdomain.Channel `gorm:"type:text;not null" json:"channel"`
	Succeeded   bool                  `gorm:"not null" json:"succeeded"`
	Reference   string                `gorm:"type:text" json:"reference,omitempty"`
	Error       string                `gorm:"type:text" json:"error,omitempty"`
	AttemptedAt time.Time             `gorm:"column:attempted_at;not null" json:"attempted_at"`
}

func (DispatchAttempt) TableName() string { return "dispatch_attempts" }

// Result is the entire contract the core requires from a channel
// collaborator: success or failure, an optional provider reference, and
// the failure reason. Provider errors never propagate past this shape.
type Result struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ChannelOutcome reports one channel's result from a fan-out dispatch.
// Attempt is nil when the channel was never called (sealed, disabled,
// or missing contact details); Error then says why.
type ChannelOutcome struct {
	Channel receiptdomain.Channel `json:"channel"`
	Attempt *DispatchAttempt      `json:"attempt,omitempty"`
	Error   string                `json:"error,omitempty"`
}
