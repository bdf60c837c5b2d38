package paymentstore

import "go.uber.org/fx"

// Module exposes the payment record store via Fx.
var Module = fx.Options(
	fx.Provide(NewStore),
)
