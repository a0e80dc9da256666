package domain

import (
	"context"
	"errors"
	"time"

	"github.com/resibo-ph/resibo/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type IssueReceiptRequest struct {
	Payer      string
	PayerEmail string
	PayerPhone string
	Purpose    string
	CategoryID string
	TemplateID string
	IssuedBy   string
	Amount     decimal.Decimal
}

type GetReceiptRequest struct {
	ID string
}

type ListReceiptRequest struct {
	PageToken     string
	PageSize      int32
	Payer         string
	CategoryID    string
	PaymentStatus string
	IssuedFrom    *time.Time
	IssuedTo      *time.Time
}

type ListReceiptResponse struct {
	pagination.PageInfo
	Receipts []Receipt `json:"receipts"`
}

// UpdateStatusRequest moves one channel of one receipt to a terminal
// state. The only accepted transition is pending to terminal.
type UpdateStatusRequest struct {
	ID      string
	Channel Channel
	Status  string
}

// StatusPatchRequest is the store-facing update surface: a raw field
// patch in which only the three channel status fields are writable.
// Any other key fails with ErrImmutableField.
type StatusPatchRequest struct {
	ID    string
	Patch map[string]string
}

type Service interface {
	Issue(context.Context, IssueReceiptRequest) (Receipt, error)
	GetByID(context.Context, GetReceiptRequest) (Receipt, error)
	GetByNumber(ctx context.Context, receiptNumber string) (Receipt, error)
	List(context.Context, ListReceiptRequest) (ListReceiptResponse, error)
	UpdateStatus(context.Context, UpdateStatusRequest) (Receipt, error)
	ApplyStatusPatch(context.Context, StatusPatchRequest) (Receipt, error)
}

var (
	ErrInvalidOrganization     = errors.New("invalid_organization")
	ErrInvalidPayer            = errors.New("invalid_payer")
	ErrInvalidPayerEmail       = errors.New("invalid_payer_email")
	ErrInvalidPurpose          = errors.New("invalid_purpose")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidCategory         = errors.New("invalid_category")
	ErrInvalidTemplate         = errors.New("invalid_template")
	ErrInvalidIssuedBy         = errors.New("invalid_issued_by")
	ErrInvalidID               = errors.New("invalid_id")
	ErrInvalidChannel          = errors.New("invalid_channel")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrInvalidPageToken        = errors.New("invalid_page_token")
	ErrDuplicateReceiptNumber  = errors.New("duplicate_receipt_number")
	ErrImmutableField          = errors.New("immutable_field_violation")
	ErrIllegalStatusTransition = errors.New("illegal_status_transition")
	ErrNotFound                = errors.New("not_found")
)
