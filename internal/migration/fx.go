package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	assignmentdomain "github.com/planfence/planfence/internal/assignment/domain"
	"github.com/planfence/planfence/internal/config"
	enforcementdomain "github.com/planfence/planfence/internal/enforcement/domain"
	subscriptiondomain "github.com/planfence/planfence/internal/subscription/domain"
	usagedomain "github.com/planfence/planfence/internal/usage/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}
		return conn.AutoMigrate(
			&enforcementdomain.EnforcementState{},
			&enforcementdomain.EnforcementEvent{},
			&usagedomain.UsageRecord{},
			&assignmentdomain.PlanAssignment{},
			&subscriptiondomain.Subscription{},
		)
	}),
)
