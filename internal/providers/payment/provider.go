package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Request identifies the payment being confirmed with the gateway.
type Request struct {
	ReceiptNumber string
	Payer         string
	Amount        string
	Currency      string
	Purpose       string
}

// Provider asks the payment collaborator to confirm capture of the
// amount behind a receipt, returning the gateway's reference.
type Provider interface {
	Confirm(ctx context.Context, req Request) (string, error)
}

// NoOpProvider confirms every payment with a locally generated
// reference, so local runs can exercise the full dispatch lifecycle
// without a gateway account.
type NoOpProvider struct{}

func (p *NoOpProvider) Confirm(ctx context.Context, req Request) (string, error) {
	return fmt.Sprintf("noop-%s", uuid.NewString()), nil
}
