package audit

import (
	"github.com/joblane/joblane/internal/audit/repository"
	"github.com/joblane/joblane/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
