package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, attempt *DispatchAttempt) error

	// ListByReceipt returns a receipt's attempts, newest first.
	ListByReceipt(ctx context.Context, db *gorm.DB, receiptID snowflake.ID) ([]DispatchAttempt, error)
}
