package invoice

import (
	"github.com/strataops/ledgerline/internal/invoice/repository"
	"github.com/strataops/ledgerline/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
