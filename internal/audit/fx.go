package audit

import (
	"github.com/resibo-ph/resibo/internal/audit/repository"
	"github.com/resibo-ph/resibo/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
