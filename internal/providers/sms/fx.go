package sms

import (
	"github.com/resibo-ph/resibo/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.sms",
	fx.Provide(NewFromConfig),
)

// NewFromConfig wires the HTTP gateway provider, falling back to the
// no-op provider when no gateway URL is configured.
func NewFromConfig(cfg config.Config) Provider {
	if cfg.SMS.GatewayURL == "" {
		return &NoOpProvider{}
	}
	return NewGateway(Config{
		GatewayURL: cfg.SMS.GatewayURL,
		APIKey:     cfg.SMS.APIKey,
		SenderID:   cfg.SMS.SenderID,
	})
}
