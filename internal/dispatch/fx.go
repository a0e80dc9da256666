package dispatch

import (
	"github.com/resibo-ph/resibo/internal/dispatch/repository"
	"github.com/resibo-ph/resibo/internal/dispatch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dispatch.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
