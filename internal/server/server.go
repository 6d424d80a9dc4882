package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	catalogdomain "github.com/voltra-energy/voltra/internal/catalog/domain"
	"github.com/voltra-energy/voltra/internal/config"
	"github.com/voltra-energy/voltra/internal/idempotency"
	orderdomain "github.com/voltra-energy/voltra/internal/order/domain"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	driver     protocoldomain.Driver
	catalogSvc catalogdomain.Service
	orderSvc   orderdomain.Service
	ledger     blockdomain.Ledger
	idem       *idempotency.Store
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Driver     protocoldomain.Driver
	CatalogSvc catalogdomain.Service
	OrderSvc   orderdomain.Service
	Ledger     blockdomain.Ledger
	Idem       *idempotency.Store `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		driver:     p.Driver,
		catalogSvc: p.CatalogSvc,
		orderSvc:   p.OrderSvc,
		ledger:     p.Ledger,
		idem:       p.Idem,
	}

	svc.registerProtocolRoutes()
	svc.registerSyncRoutes()
	svc.registerOrderRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerProtocolRoutes() {
	s.engine.POST("/protocol/:action", s.HandleProtocol)
	s.engine.GET("/transactions/:id/status", s.GetTransactionStatus)
}

func (s *Server) registerSyncRoutes() {
	s.engine.GET("/catalog", s.GetCatalog)

	sync := s.engine.Group("/sync")
	{
		sync.POST("/providers", s.SyncProvider)
		sync.POST("/items", s.SyncItem)
		sync.POST("/offers", s.SyncOffer)
		sync.POST("/offers/:id/disable", s.DisableOffer)
		sync.DELETE("/offers/:id", s.DeleteOffer)
		sync.POST("/blocks/status", s.SyncBlockStatuses)
	}
}

func (s *Server) registerOrderRoutes() {
	s.engine.GET("/orders/:id", s.GetOrder)
	s.engine.POST("/orders/:id/transition", s.TransitionOrder)
	s.engine.POST("/verification", s.IngestVerification)
}
