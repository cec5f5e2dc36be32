package router

import (
	"context"
	"net/http"
	"time"

	apphttp "ordersync_backend/internal/http"
	"ordersync_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// New builds the gin engine: global middleware, health and metrics endpoints,
// and the /api/v1 groups every module mounts its routes on.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(app.Config)))

	limiter := httpkit.NewIPRateLimiter(rate.Limit(20), 40, app.Logger)
	engine.Use(limiter.RateLimit())

	engine.GET("/api/health", func(c *gin.Context) {
		if app.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := app.Health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if app.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(app.Metrics))
	}

	v1 := engine.Group("/api/v1")
	auth := httpkit.AuthRequired(app.Config)

	rc := &apphttp.RouterContext{
		Engine:            engine,
		V1:                v1,
		Protected:         v1.Group("", auth),
		Config:            app.Config,
		AuthMiddleware:    auth,
		UploadRateLimiter: httpkit.NewUploadRateLimiter(app.Logger),
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(rc)
		app.Logger.Info("registered module routes", "module", m.Name())
	}

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.DefaultConfig()
	c.AddAllowMethods("DELETE")
	c.AddAllowHeaders("Authorization", httpkit.RequestIDHeader)
	c.AddExposeHeaders("Content-Disposition", httpkit.RequestIDHeader)
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
		return c
	}
	if origins := cfg.GetCORSOrigins(); len(origins) > 0 {
		c.AllowOrigins = origins
	} else {
		c.AllowOriginFunc = func(string) bool { return false }
	}
	c.AllowCredentials = cfg.GetCORSAllowCreds()
	return c
}
