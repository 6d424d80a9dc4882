package order

import (
	"github.com/voltra-energy/voltra/internal/order/repository"
	"github.com/voltra-energy/voltra/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
