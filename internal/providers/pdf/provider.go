package pdf

import (
	"context"
	"io"

	appconfig "github.com/strataops/ledgerline/internal/config"
	"go.uber.org/fx"
)

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

// MarotoProvider renders documents with maroto.
type MarotoProvider struct {
	orgName string
}

func NewMaroto(cfg appconfig.Config) Provider {
	return &MarotoProvider{orgName: cfg.AppName}
}

var Module = fx.Module("providers.pdf",
	fx.Provide(NewMaroto),
)
