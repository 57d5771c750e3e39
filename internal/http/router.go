package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/majidsafwaan2/gymguard/internal/authz"
	"github.com/majidsafwaan2/gymguard/internal/config"
	"github.com/majidsafwaan2/gymguard/internal/http/handler"
	httpmiddleware "github.com/majidsafwaan2/gymguard/internal/http/middleware"
	"github.com/majidsafwaan2/gymguard/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authorizer *httpmiddleware.Authorizer, rateLimiter *middleware.RateLimiter, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/federated", authHandler.Federated)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)

		authGroup.GET("/me", authorizer.Require(authz.SensitivityStandard), authHandler.Me)
		authGroup.POST("/consent", authorizer.Require(authz.SensitivityStandard), authHandler.GrantConsent)
	}

	users := r.Group("/users")
	{
		users.GET("/sessions", authorizer.Require(authz.SensitivityStandard), authHandler.Sessions)
		users.GET("/activity", authorizer.Require(authz.SensitivityMinorProtected), authHandler.Activity)
		users.POST("/deactivate", authorizer.Require(authz.SensitivityStandard), authHandler.Deactivate)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}
