package reminder

import (
	"github.com/strataops/ledgerline/internal/reminder/repository"
	"github.com/strataops/ledgerline/internal/reminder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reminder.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewEmailNotifier),
	fx.Provide(service.NewService),
)
