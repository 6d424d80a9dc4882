package idempotency

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/voltra-energy/voltra/internal/config"
	"go.uber.org/fx"
)

// NewRedisClient builds the shared redis client, or nil when redis is
// disabled. Downstream consumers must tolerate a nil client.
func NewRedisClient(cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
}

func NewStoreFromConfig(client *redis.Client, cfg config.Config) *Store {
	return NewStore(client, cfg.Protocol.IdempotencyTTL)
}

var Module = fx.Module("idempotency",
	fx.Provide(NewRedisClient),
	fx.Provide(NewStoreFromConfig),
)
