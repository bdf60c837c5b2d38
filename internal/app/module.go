package app

import (
	"time"

	"github.com/lumapay/settlement/internal/app/api/server"
	"github.com/lumapay/settlement/internal/app/service/paymentstore"
	"github.com/lumapay/settlement/internal/app/service/settlement"
	"github.com/lumapay/settlement/internal/platform/db"
	"github.com/lumapay/settlement/pkg/config"
	"github.com/lumapay/settlement/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	server.Module,
	paymentstore.Module,
	settlement.Module,
)
