package payment

import (
	"github.com/resibo-ph/resibo/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.payment",
	fx.Provide(NewFromConfig),
)

// NewFromConfig wires the HTTP gateway provider, falling back to the
// no-op provider when no gateway URL is configured.
func NewFromConfig(cfg config.Config) Provider {
	if cfg.Payment.GatewayURL == "" {
		return &NoOpProvider{}
	}
	return NewGateway(Config{
		GatewayURL: cfg.Payment.GatewayURL,
		APIKey:     cfg.Payment.APIKey,
	})
}
