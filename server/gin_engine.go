package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/smosvm/config"
	"github.com/wyfcoding/smosvm/limiter"
	"github.com/wyfcoding/smosvm/logging"
	"github.com/wyfcoding/smosvm/metrics"
	"github.com/wyfcoding/smosvm/middleware"
)

// NewDefaultGinEngine 创建不带默认中间件的 Gin 引擎，中间件顺序由调用方决定。
func NewDefaultGinEngine(middlewares ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.Use(middlewares...)
	return engine
}

// EngineDeps NewEngine 的可选依赖，为 nil 的项对应功能关闭.
type EngineDeps struct {
	Metrics *metrics.Metrics
	Limiter limiter.Limiter
	Logger  *logging.Logger
}

// NewEngine 组装预测服务的完整中间件链与路由。
// 限流只作用于 /v1 下的业务接口，健康检查与指标不受限.
func NewEngine(cfg *config.Config, svc *PredictionService, deps EngineDeps) (*gin.Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}

	chain := []gin.HandlerFunc{
		middleware.Recovery(logger.Logger),
		middleware.RequestID(node),
	}
	if cfg.Tracing.Enabled {
		chain = append(chain, middleware.TracingMiddleware(cfg.Tracing.ServiceName, "/healthz", cfg.Metrics.Path))
	}
	chain = append(chain,
		middleware.Logger(logger.Logger),
		middleware.HTTPMetricsMiddleware(deps.Metrics, middleware.MetricsOptions{
			SlowThreshold: cfg.Server.HTTP.SlowThreshold,
			SkipPaths:     []string{"/healthz", cfg.Metrics.Path},
		}),
	)
	engine := NewDefaultGinEngine(chain...)

	engine.GET("/healthz", svc.Health)
	if deps.Metrics != nil && cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		engine.GET(cfg.Metrics.Path, gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := engine.Group("/v1", middleware.MaxBodyBytes(cfg.Server.HTTP.MaxBodyBytes))
	if cfg.Server.RateLimit.Enabled && deps.Limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(deps.Limiter))
	}
	svc.Register(v1)
	return engine, nil
}
