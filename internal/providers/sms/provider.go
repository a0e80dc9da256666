package sms

import "context"

// Provider delivers receipt notifications over SMS.
type Provider interface {
	Send(ctx context.Context, to string, message string) error
}

// NoOpProvider drops every message and reports success, so local runs can
// exercise the full dispatch lifecycle without a gateway account.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to string, message string) error {
	return nil
}
