package block

import (
	"github.com/voltra-energy/voltra/internal/block/repository"
	"github.com/voltra-energy/voltra/internal/block/service"
	"go.uber.org/fx"
)

var Module = fx.Module("block.ledger",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewLedger),
)
