package protocol

import (
	"github.com/voltra-energy/voltra/internal/protocol/callback"
	"github.com/voltra-energy/voltra/internal/protocol/dedup"
	"github.com/voltra-energy/voltra/internal/protocol/repository"
	"github.com/voltra-energy/voltra/internal/protocol/service"
	"github.com/voltra-energy/voltra/internal/protocol/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("protocol",
	fx.Provide(
		repository.Provide,
		dedup.New,
		callback.New,
		worker.NewFromConfig,
		service.New,
	),
)
