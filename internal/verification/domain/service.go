package domain

import (
	"context"
	"errors"

	receiptdomain "github.com/resibo-ph/resibo/internal/receipt/domain"
)

// VerifyRequest carries either a hand-typed receipt number or a scanned
// payload. Exactly one of the two fields should be set; when both are
// present the payload wins, matching the scanner-first flow.
type VerifyRequest struct {
	ReceiptNumber string
	Payload       string
}

// VerificationResult reports a lookup outcome. Verified carries the
// full live record; a miss carries the number that was probed.
type VerificationResult struct {
	Verified      bool                   `json:"verified"`
	ReceiptNumber string                 `json:"receipt_number"`
	Receipt       *receiptdomain.Receipt `json:"receipt,omitempty"`
}

type Service interface {
	// Verify resolves the input to a receipt number and looks it up.
	// It is a pure read: no receipt state changes on any path.
	Verify(context.Context, VerifyRequest) (VerificationResult, error)
}

var (
	ErrMalformedPayload = errors.New("malformed_payload")
	ErrEmptyInput       = errors.New("empty_verification_input")
)
