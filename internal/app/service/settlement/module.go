package settlement

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lumapay/settlement/internal/app/service/paymentstore"
	"github.com/lumapay/settlement/internal/platform/paypal"
	"github.com/lumapay/settlement/pkg/config"
	"github.com/lumapay/settlement/pkg/cryptovault"
	"github.com/lumapay/settlement/pkg/tool"
)

func newManager(cfg *config.Config, log *zap.SugaredLogger, store *paymentstore.Store, db *gorm.DB) (SettlementManager, error) {
	gateway, err := paypal.NewClient(paypal.Options{
		BaseURL:      cfg.PayPal.BaseURL,
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		ReturnURL:    cfg.PayPal.ReturnURL,
		CancelURL:    cfg.PayPal.CancelURL,
		Timeout:      cfg.PayPal.Timeout(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init gateway client: %w", err)
	}

	vault, err := cryptovault.New(cfg.Vault.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to init crypto vault: %w", err)
	}

	return NewService(log, store, gateway, vault, tool.UUIDGenerator{}, db), nil
}

// Module exposes the settlement service via Fx.
var Module = fx.Options(
	fx.Provide(newManager),
)
