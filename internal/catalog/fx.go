package catalog

import (
	"github.com/voltra-energy/voltra/internal/catalog/repository"
	"github.com/voltra-energy/voltra/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
