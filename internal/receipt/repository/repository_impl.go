package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/resibo-ph/resibo/internal/receipt/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, receipt *domain.Receipt) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO receipts (
			id, org_id, receipt_number, payer, payer_email, payer_phone,
			purpose, category_id, template_id, issued_by, amount,
			amount_in_words, issued_at, verification_payload,
			payment_status, email_status, sms_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (receipt_number) DO NOTHING`,
		receipt.ID,
		receipt.OrgID,
		receipt.ReceiptNumber,
		receipt.Payer,
		receipt.PayerEmail,
		receipt.PayerPhone,
		receipt.Purpose,
		receipt.CategoryID,
		receipt.TemplateID,
		receipt.IssuedBy,
		receipt.Amount,
		receipt.AmountInWords,
		receipt.IssuedAt,
		receipt.Payload,
		receipt.PaymentStatus,
		receipt.EmailStatus,
		receipt.SMSStatus,
		receipt.CreatedAt,
		receipt.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, orgID snowflake.ID, year int) (int64, error) {
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO receipt_sequences (org_id, year, last_seq, updated_at)
		 VALUES (?, ?, 0, CURRENT_TIMESTAMP)
		 ON CONFLICT (org_id, year) DO NOTHING`,
		orgID,
		year,
	).Error; err != nil {
		return 0, err
	}

	// The update takes a row lock for the rest of the transaction, so
	// concurrent mints advance the sequence one at a time.
	if err := db.WithContext(ctx).Exec(
		`UPDATE receipt_sequences
		 SET last_seq = last_seq + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE org_id = ? AND year = ?`,
		orgID,
		year,
	).Error; err != nil {
		return 0, err
	}

	var seq int64
	if err := db.WithContext(ctx).Raw(
		`SELECT last_seq FROM receipt_sequences WHERE org_id = ? AND year = ?`,
		orgID,
		year,
	).Scan(&seq).Error; err != nil {
		return 0, err
	}
	if seq <= 0 {
		return 0, fmt.Errorf("receipt sequence did not advance for org %s year %d", orgID, year)
	}
	return seq, nil
}

const receiptColumns = `id, org_id, receipt_number, payer, payer_email, payer_phone,
	purpose, category_id, template_id, issued_by, amount, amount_in_words,
	issued_at, verification_payload, payment_status, email_status, sms_status,
	created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Receipt, error) {
	var receipt domain.Receipt
	err := db.WithContext(ctx).Raw(
		`SELECT `+receiptColumns+` FROM receipts WHERE id = ?`,
		id,
	).Scan(&receipt).Error
	if err != nil {
		return nil, err
	}
	if receipt.ID == 0 {
		return nil, nil
	}
	return &receipt, nil
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, receiptNumber string) (*domain.Receipt, error) {
	var receipt domain.Receipt
	err := db.WithContext(ctx).Raw(
		`SELECT `+receiptColumns+` FROM receipts WHERE receipt_number = ?`,
		receiptNumber,
	).Scan(&receipt).Error
	if err != nil {
		return nil, err
	}
	if receipt.ID == 0 {
		return nil, nil
	}
	return &receipt, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]*domain.Receipt, error) {
	var receipts []*domain.Receipt
	stmt := db.WithContext(ctx).
		Model(&domain.Receipt{}).
		Where("org_id = ?", orgID)

	if filter.Payer != "" {
		stmt = stmt.Where("payer = ?", filter.Payer)
	}
	if filter.CategoryID != 0 {
		stmt = stmt.Where("category_id = ?", filter.CategoryID)
	}
	if filter.PaymentStatus != "" {
		stmt = stmt.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.IssuedFrom != nil {
		stmt = stmt.Where("issued_at >= ?", filter.IssuedFrom.UTC())
	}
	if filter.IssuedTo != nil {
		stmt = stmt.Where("issued_at <= ?", filter.IssuedTo.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

func (r *repo) UpdateChannelStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, channel domain.Channel, status string) (int64, error) {
	column, ok := statusColumn(channel)
	if !ok {
		return 0, fmt.Errorf("unknown status channel %q", channel)
	}

	result := db.WithContext(ctx).Exec(
		fmt.Sprintf(
			`UPDATE receipts
			 SET %s = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND %s = ?`,
			column, column,
		),
		status,
		id,
		string(domain.PaymentStatusPending),
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func statusColumn(channel domain.Channel) (string, bool) {
	switch channel {
	case domain.ChannelPayment:
		return "payment_status", true
	case domain.ChannelEmail:
		return "email_status", true
	case domain.ChannelSMS:
		return "sms_status", true
	default:
		return "", false
	}
}
