package organization

import (
	"github.com/joblane/joblane/internal/organization/event"
	"github.com/joblane/joblane/internal/organization/repository"
	"github.com/joblane/joblane/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(event.NewOutboxPublisher),
	fx.Provide(service.NewService),
)
