package scheduler

import (
	"context"
	"time"

	"github.com/strataops/ledgerline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// startupGrace bounds how long the scheduler waits for the database
// before giving up and letting the first tick report the failure.
const startupGrace = 30 * time.Second

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(NewLocker),
	fx.Provide(New),
	fx.Invoke(RunScheduler),
)

func RunScheduler(lc fx.Lifecycle, sched *Scheduler, conn *gorm.DB, log *zap.Logger) {
	log = log.Named("scheduler.runner")

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go func() {
				if err := db.WaitReady(ctx, conn, startupGrace, log); err != nil {
					log.Error("database never became ready", zap.Error(err))
				}
				sched.RunForever(ctx)
			}()

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
