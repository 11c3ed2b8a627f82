package payment

import (
	appconfig "github.com/strataops/ledgerline/internal/config"
	"github.com/strataops/ledgerline/internal/payment/gateway"
	"github.com/strataops/ledgerline/internal/payment/repository"
	"github.com/strataops/ledgerline/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(newGatewayClient),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

func newGatewayClient(cfg appconfig.Config) *gateway.Client {
	return gateway.New(gateway.Config{
		BaseURL:      cfg.GatewayBaseURL,
		MerchantCode: cfg.GatewayMerchantCode,
		Secret:       cfg.GatewaySecret,
		SuccessCode:  cfg.GatewaySuccessCode,
		ReturnURL:    cfg.PublicURL + cfg.GatewayCallbackPath,
	})
}
