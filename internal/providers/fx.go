package providers

import (
	"github.com/strataops/ledgerline/internal/providers/email"
	"github.com/strataops/ledgerline/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
