package pricing

import (
	"github.com/strataops/ledgerline/internal/pricing/repository"
	"github.com/strataops/ledgerline/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
