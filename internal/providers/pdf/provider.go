package pdf

import (
	"context"
	"io"
)

// ReceiptDocument carries the fields printed on a receipt. Values arrive
// preformatted; the renderer only lays them out.
type ReceiptDocument struct {
	OrganizationName    string
	OrganizationAddress string
	ContactEmail        string
	HeaderText          string
	FooterText          string

	ReceiptNumber string
	IssuedAt      string

	PayerName  string
	PayerEmail string
	PayerPhone string

	Amount        string
	AmountInWords string
	Purpose       string
	Category      string
	PaymentStatus string
	IssuedBy      string

	// VerificationPayload is printed as a QR code so the receipt can be
	// scanned back into a verification lookup. Empty skips the cell.
	VerificationPayload string
	VerifyURL           string
}

// Provider renders printable receipt documents.
type Provider interface {
	RenderReceipt(ctx context.Context, data ReceiptDocument) (io.Reader, error)
}
