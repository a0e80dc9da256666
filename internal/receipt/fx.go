package receipt

import (
	"github.com/resibo-ph/resibo/internal/receipt/repository"
	"github.com/resibo-ph/resibo/internal/receipt/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
