package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/resibo-ph/resibo/internal/dispatch/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, attempt *domain.DispatchAttempt) error {
	if attempt == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO dispatch_attempts (
			id, org_id, receipt_id, channel, succeeded, reference, error, attempted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID,
		attempt.OrgID,
		attempt.ReceiptID,
		attempt.Channel,
		attempt.Succeeded,
		attempt.Reference,
		attempt.Error,
		attempt.AttemptedAt,
	).Error
}

func (r *repo) ListByReceipt(ctx context.Context, db *gorm.DB, receiptID snowflake.ID) ([]domain.DispatchAttempt, error) {
	var attempts []domain.DispatchAttempt
	err := db.WithContext(ctx).Model(&domain.DispatchAttempt{}).
		Where("receipt_id = ?", receiptID).
		Order("attempted_at DESC").
		Order("id DESC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}
