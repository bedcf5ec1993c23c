// Package router 组装 gin 路由与 net/http 中间件链
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/api"
	"github.com/MorseWayne/storefront/internal/cache"
	"github.com/MorseWayne/storefront/internal/config"
	"github.com/MorseWayne/storefront/internal/limiter"
	mw "github.com/MorseWayne/storefront/internal/middleware"
	"github.com/MorseWayne/storefront/internal/resp"
)

const (
	idempotencyTTL = 24 * time.Hour
	healthTimeout  = 2 * time.Second
)

// HealthCheck 健康检查项，例如存储或缓存的 Ping
type HealthCheck func(ctx context.Context) error

// Dependencies 包含路由设置所需的所有依赖
type Dependencies struct {
	ProductHandler *api.ProductHandler
	ShopHandler    *api.ShopHandler
	AdminHandler   *api.AdminHandler
	AuthHandler    *api.AuthHandler
	TokenValidator mw.TokenValidator

	// Limiter 为 nil 时公共接口不限流
	Limiter limiter.Limiter
	// IdempotencyStore 为 nil 时后台创建接口不做幂等校验
	IdempotencyStore cache.Cache
	HealthChecks     map[string]HealthCheck
}

// Router 路由器接口
type Router interface {
	Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler
}

// GinRouter Gin路由器实现
type GinRouter struct {
	engine *gin.Engine
	cfg    *config.Config
	deps   *Dependencies
	logger *zap.Logger
}

// New 创建新的路由器实例
func New() Router {
	return &GinRouter{}
}

// Setup 注册路由并返回包裹了通用中间件的 http.Handler。
// 请求进入时依次经过 access log → CORS → timeout → recovery → request ID → gin。
func (r *GinRouter) Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler {
	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r.engine = gin.New()
	r.cfg = cfg
	r.deps = deps
	r.logger = lg

	r.engine.NoRoute(func(c *gin.Context) {
		resp.Error(c.Writer, http.StatusNotFound, resp.CodeNotFound, "route not found",
			mw.RequestIDFromContext(c.Request.Context()), "")
	})
	r.setupRoutes()

	var handler http.Handler = r.engine
	handler = mw.RequestID(handler)
	handler = mw.Recovery(lg)(handler)
	handler = mw.Timeout(cfg.App.RequestTimeout)(handler)
	handler = mw.CORS(cfg.CORS)(handler)
	handler = mw.AccessLog(lg)(handler)
	return handler
}

func (r *GinRouter) setupRoutes() {
	r.engine.GET("/healthz", r.healthCheck)

	v1 := r.engine.Group("/api/v1")

	public := v1.Group("")
	if r.deps.Limiter != nil {
		public.Use(limiter.RateLimitMiddleware(limiter.MiddlewareConfig{
			Limiter: r.deps.Limiter,
			Logger:  r.logger,
		}))
	}
	{
		public.GET("/shop", r.deps.ShopHandler.Shop)
		public.GET("/home", r.deps.ProductHandler.Home)
		public.GET("/categories", r.deps.ProductHandler.ListCategories)

		products := public.Group("/products")
		products.GET("", r.deps.ProductHandler.ListProducts)
		products.GET("/featured", r.deps.ProductHandler.ListFeatured)
		products.GET("/discounted", r.deps.ProductHandler.ListDiscounted)
		products.GET("/hot-deals", r.deps.ProductHandler.HotDeals)
		products.GET("/:id", r.deps.ProductHandler.GetProduct)
	}

	auth := v1.Group("/auth")
	{
		auth.POST("/login", r.deps.AuthHandler.Login)
		auth.POST("/refresh", r.deps.AuthHandler.RefreshToken)
	}

	admin := v1.Group("/admin")
	admin.Use(adapt(mw.AuthMiddleware(r.deps.TokenValidator, r.logger)), adapt(mw.RequireAdmin(r.logger)))
	{
		create := []gin.HandlerFunc{}
		if r.deps.IdempotencyStore != nil {
			create = append(create, mw.Idempotency(r.deps.IdempotencyStore, idempotencyTTL, r.logger))
		}
		create = append(create, r.deps.AdminHandler.CreateProduct)

		adminProducts := admin.Group("/products")
		adminProducts.POST("", create...)
		adminProducts.GET("/stats", r.deps.AdminHandler.GetProductStats)
		adminProducts.PUT("/:id", r.deps.AdminHandler.UpdateProduct)
		adminProducts.DELETE("/:id", r.deps.AdminHandler.DeleteProduct)

		admin.POST("/catalog/refresh", r.deps.AdminHandler.RefreshCatalog)
	}
}

// healthCheck 健康检查：任一依赖不可用时返回 503
func (r *GinRouter) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := make(map[string]string, len(r.deps.HealthChecks))
	healthy := true
	for name, check := range r.deps.HealthChecks {
		if err := check(ctx); err != nil {
			r.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	reqID := mw.RequestIDFromContext(c.Request.Context())
	data := map[string]any{
		"status":  "ok",
		"version": r.cfg.App.Version,
		"checks":  checks,
	}
	if !healthy {
		data["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, resp.Envelope{
			Code: resp.CodeUnavailable, Message: "degraded", Data: data, RequestID: reqID,
		})
		return
	}
	resp.OK(c.Writer, data, reqID, "")
}

// adapt 将 net/http 中间件转换为 gin 中间件；
// 中间件未调用 next 时终止后续处理。
func adapt(m func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		m(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			passed = true
			c.Request = req
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}
