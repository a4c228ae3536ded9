package auth

import (
	"github.com/joblane/joblane/internal/auth/repository"
	"github.com/joblane/joblane/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
