package migration

import (
	"context"

	auditdomain "github.com/joblane/joblane/internal/audit/domain"
	authdomain "github.com/joblane/joblane/internal/auth/domain"
	"github.com/joblane/joblane/internal/config"
	organizationdomain "github.com/joblane/joblane/internal/organization/domain"
	organizationevent "github.com/joblane/joblane/internal/organization/event"
	"github.com/joblane/joblane/internal/ratelimit"
	"github.com/joblane/joblane/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type params struct {
	fx.In

	DB      *gorm.DB
	Cfg     config.Config
	Limiter *ratelimit.JoinRequestLimiter `optional:"true"`
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p params) error {
		if p.Cfg.DBType == "postgres" {
			sqlDB, err := p.DB.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres deployments (local sqlite, tests) build the
			// schema from the models directly.
			if err := p.DB.AutoMigrate(
				&authdomain.User{},
				&authdomain.Session{},
				&organizationdomain.Organization{},
				&organizationdomain.OrganizationAdmin{},
				&organizationdomain.OrganizationMember{},
				&organizationdomain.JoinRequest{},
				&organizationevent.OutboxEvent{},
				&auditdomain.AuditLog{},
			); err != nil {
				return err
			}
		}

		if !p.Cfg.Bootstrap.EnsureDefaultOrgAndAdmin {
			return nil
		}

		// Only one replica runs the seed when several start at once. The
		// seed itself is idempotent, so losing the lock means skipping
		// work another replica is already doing.
		ctx := context.Background()
		token, acquired, err := p.Limiter.TryBootstrapLock(ctx, "seed")
		if err != nil || !acquired {
			return err
		}
		defer func() { _ = p.Limiter.ReleaseBootstrapLock(ctx, "seed", token) }()

		return seed.EnsureDefaultOrgAndAdmin(p.DB)
	}),
)
