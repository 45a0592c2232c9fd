// Package server exposes the evaluation, consumption, usage and plan
// administration endpoints over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	assignmentdomain "github.com/planfence/planfence/internal/assignment/domain"
	"github.com/planfence/planfence/internal/config"
	enforcementdomain "github.com/planfence/planfence/internal/enforcement/domain"
	enforcementrepo "github.com/planfence/planfence/internal/enforcement/repository"
	obstracing "github.com/planfence/planfence/internal/observability/tracing"
	"github.com/planfence/planfence/internal/plan"
	"github.com/planfence/planfence/internal/ratelimit"
	usagedomain "github.com/planfence/planfence/internal/usage/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	enforcer    enforcementdomain.Service
	usage       usagedomain.Counter
	catalog     *plan.Catalog
	assignments assignmentdomain.Service
	states      *enforcementrepo.StateRepository
	limiter     *ratelimit.APILimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Enforcer    enforcementdomain.Service
	Usage       usagedomain.Counter
	Catalog     *plan.Catalog
	Assignments assignmentdomain.Service
	States      *enforcementrepo.StateRepository
	Limiter     *ratelimit.APILimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("server"),
		enforcer:    p.Enforcer,
		usage:       p.Usage,
		catalog:     p.Catalog,
		assignments: p.Assignments,
		states:      p.States,
		limiter:     p.Limiter,
	}

	s.registerAPIRoutes()

	return s
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.RateLimit())

	v1.POST("/evaluate", s.Evaluate)
	v1.POST("/consume", s.Consume)
	v1.GET("/plans", s.ListPlans)
	v1.GET("/owners/:kind/:id/usage", s.OwnerUsage)
	v1.GET("/owners/:kind/:id/events", s.OwnerEvents)
	v1.PUT("/owners/:kind/:id/plan", s.AssignPlan)
	v1.DELETE("/owners/:kind/:id/plan", s.ClearPlan)
}
