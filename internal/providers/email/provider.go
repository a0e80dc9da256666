package email

import "context"

// ReceiptEmail carries the fields rendered into the receipt notification.
// Values arrive preformatted; the provider only lays them out.
type ReceiptEmail struct {
	OrganizationName string
	ReceiptNumber    string
	PayerName        string
	Amount           string
	AmountInWords    string
	Purpose          string
	IssuedAt         string
	VerifyURL        string
}

// Provider delivers receipt notifications over email.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendReceipt(ctx context.Context, to string, data ReceiptEmail) error
}

// NoOpProvider drops every message and reports success, so local runs can
// exercise the full dispatch lifecycle without a mail server.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *NoOpProvider) SendReceipt(ctx context.Context, to string, data ReceiptEmail) error {
	return nil
}
