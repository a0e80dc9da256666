package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ReceiptCursor marks a position in the created_at/id listing order.
type ReceiptCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// ListFilter narrows receipt listings. Cursor and Limit drive keyset
// pagination; Limit+1 rows are fetched to detect a next page.
type ListFilter struct {
	Payer         string
	CategoryID    snowflake.ID
	PaymentStatus string
	IssuedFrom    *time.Time
	IssuedTo      *time.Time
	Cursor        *ReceiptCursor
	Limit         int
}

type Repository interface {
	// Insert writes a new receipt. Returns false without error when the
	// receipt number already exists; the caller surfaces that as
	// ErrDuplicateReceiptNumber.
	Insert(ctx context.Context, db *gorm.DB, receipt *Receipt) (bool, error)

	// NextSequence atomically advances and returns the per-organization,
	// per-year issue sequence. Must run inside the caller's transaction.
	NextSequence(ctx context.Context, db *gorm.DB, orgID snowflake.ID, year int) (int64, error)

	// FindByID looks up a receipt by its snowflake ID. IDs are globally
	// unique so no organization scope applies; dispatch re-reads go
	// through this path.
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Receipt, error)

	// FindByNumber looks up a receipt by its exact number. Numbers are
	// globally unique so no organization scope applies; verification
	// reads go through this path.
	FindByNumber(ctx context.Context, db *gorm.DB, receiptNumber string) (*Receipt, error)

	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]*Receipt, error)

	// UpdateChannelStatus performs the conditional terminal write for one
	// channel: the row only changes when the channel is still pending.
	// Returns the number of rows affected; zero means the receipt is
	// missing or the channel already reached a terminal state.
	UpdateChannelStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, channel Channel, status string) (int64, error)
}
