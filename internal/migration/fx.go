package migration

import (
	"strings"

	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	catalogdomain "github.com/voltra-energy/voltra/internal/catalog/domain"
	"github.com/voltra-energy/voltra/internal/config"
	orderdomain "github.com/voltra-energy/voltra/internal/order/domain"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Non-postgres deployments (mysql, sqlite for local spikes) fall back
		// to schema sync; the versioned SQL is postgres dialect.
		return conn.AutoMigrate(
			&catalogdomain.Provider{},
			&catalogdomain.CatalogItem{},
			&catalogdomain.Offer{},
			&blockdomain.OfferBlock{},
			&orderdomain.Order{},
			&protocoldomain.Event{},
		)
	}),
)
